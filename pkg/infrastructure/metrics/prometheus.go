package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricPrefix namespaces every fleetq metric.
const metricPrefix = "fleetq_"

// PrometheusCollector implements Collector using Prometheus.
type PrometheusCollector struct {
	mu         sync.Mutex
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusCollector creates a new Prometheus collector with its own
// registry.
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Registry returns the collector's Prometheus registry.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// IncrementCounter increments a counter metric.
func (p *PrometheusCollector) IncrementCounter(name string, labels ...string) {
	labelNames, labelValues := parseLabelPairs(labels)

	p.mu.Lock()
	counter, exists := p.counters[name]
	if !exists {
		counter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + name,
				Help: fmt.Sprintf("Counter for %s", name),
			},
			labelNames,
		)
		p.registry.MustRegister(counter)
		p.counters[name] = counter
	}
	p.mu.Unlock()

	counter.WithLabelValues(labelValues...).Inc()
}

// RecordHistogram records a value in a histogram metric.
func (p *PrometheusCollector) RecordHistogram(name string, value float64, labels ...string) {
	labelNames, labelValues := parseLabelPairs(labels)

	p.mu.Lock()
	histogram, exists := p.histograms[name]
	if !exists {
		histogram = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + name,
				Help:    fmt.Sprintf("Histogram for %s", name),
				Buckets: prometheus.DefBuckets,
			},
			labelNames,
		)
		p.registry.MustRegister(histogram)
		p.histograms[name] = histogram
	}
	p.mu.Unlock()

	histogram.WithLabelValues(labelValues...).Observe(value)
}

// RecordGauge records a gauge metric value.
func (p *PrometheusCollector) RecordGauge(name string, value float64, labels ...string) {
	labelNames, labelValues := parseLabelPairs(labels)

	p.mu.Lock()
	gauge, exists := p.gauges[name]
	if !exists {
		gauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + name,
				Help: fmt.Sprintf("Gauge for %s", name),
			},
			labelNames,
		)
		p.registry.MustRegister(gauge)
		p.gauges[name] = gauge
	}
	p.mu.Unlock()

	gauge.WithLabelValues(labelValues...).Set(value)
}

// StartTimer starts a timer for measuring duration.
func (p *PrometheusCollector) StartTimer(name string) Timer {
	return &prometheusTimer{
		start:     time.Now(),
		name:      name,
		collector: p,
	}
}

// prometheusTimer implements Timer for Prometheus.
type prometheusTimer struct {
	start     time.Time
	name      string
	collector *PrometheusCollector
}

// Stop records the elapsed time into the timer's histogram and returns it
// in seconds.
func (t *prometheusTimer) Stop() float64 {
	elapsed := time.Since(t.start).Seconds()
	t.collector.RecordHistogram(t.name+"_seconds", elapsed)
	return elapsed
}

// parseLabelPairs parses label pairs from variadic string arguments.
// Expected format: "key1", "value1", "key2", "value2", ...
func parseLabelPairs(labels []string) ([]string, []string) {
	if len(labels)%2 != 0 {
		labels = labels[:len(labels)-1]
	}

	labelNames := make([]string, 0, len(labels)/2)
	labelValues := make([]string, 0, len(labels)/2)

	for i := 0; i < len(labels); i += 2 {
		labelNames = append(labelNames, labels[i])
		labelValues = append(labelValues, labels[i+1])
	}

	return labelNames, labelValues
}

// Server exposes a Prometheus scrape endpoint while a run is active.
type Server struct {
	address string
	server  *http.Server
}

// NewServer creates a new metrics server for a collector's registry.
func NewServer(address string, collector *PrometheusCollector) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))

	return &Server{
		address: address,
		server: &http.Server{
			Addr:    address,
			Handler: mux,
		},
	}
}

// Start starts the metrics server and blocks until it is closed.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the metrics server.
func (s *Server) Stop() error {
	return s.server.Close()
}
