package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Counter(t *testing.T) {
	collector := NewPrometheusCollector()

	collector.IncrementCounter("endpoint_successes")
	collector.IncrementCounter("endpoint_successes")
	collector.IncrementCounter("endpoint_failures", "endpoint_id", "pg-1")

	counter := collector.counters["endpoint_successes"]
	require.NotNil(t, counter)
	assert.Equal(t, float64(2), testutil.ToFloat64(counter.WithLabelValues()))

	labeled := collector.counters["endpoint_failures"]
	require.NotNil(t, labeled)
	assert.Equal(t, float64(1), testutil.ToFloat64(labeled.WithLabelValues("pg-1")))
}

func TestPrometheusCollector_Gauge(t *testing.T) {
	collector := NewPrometheusCollector()

	collector.RecordGauge("endpoints_configured", 4)
	collector.RecordGauge("endpoints_configured", 7)

	gauge := collector.gauges["endpoints_configured"]
	require.NotNil(t, gauge)
	assert.Equal(t, float64(7), testutil.ToFloat64(gauge.WithLabelValues()))
}

func TestPrometheusCollector_Histogram(t *testing.T) {
	collector := NewPrometheusCollector()

	collector.RecordHistogram("endpoint_duration_seconds", 0.25)
	collector.RecordHistogram("endpoint_duration_seconds", 0.75)

	count, err := testutil.GatherAndCount(collector.Registry(), "fleetq_endpoint_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusCollector_Timer(t *testing.T) {
	collector := NewPrometheusCollector()

	timer := collector.StartTimer("run_duration")
	elapsed := timer.Stop()

	assert.GreaterOrEqual(t, elapsed, float64(0))
	assert.NotNil(t, collector.histograms["run_duration_seconds"])
}

func TestParseLabelPairs(t *testing.T) {
	names, values := parseLabelPairs([]string{"a", "1", "b", "2"})
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, []string{"1", "2"}, values)

	// A dangling key is dropped.
	names, values = parseLabelPairs([]string{"a", "1", "orphan"})
	assert.Equal(t, []string{"a"}, names)
	assert.Equal(t, []string{"1"}, values)

	names, values = parseLabelPairs(nil)
	assert.Empty(t, names)
	assert.Empty(t, values)
}

func TestNoOpCollector(t *testing.T) {
	collector := NewNoOpCollector()

	collector.IncrementCounter("anything")
	collector.RecordGauge("anything", 1)
	collector.RecordHistogram("anything", 1)
	assert.GreaterOrEqual(t, collector.StartTimer("anything").Stop(), float64(0))
}
