// Package metrics provides metrics collection for fleetq runs.
package metrics

import (
	"time"
)

// Collector records counters, histograms, and gauges for a run. The CLI
// wires either the Prometheus implementation or the no-op one, so callers
// never have to check whether metrics are enabled.
type Collector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer measures one operation. Stop reports the elapsed time in seconds,
// the unit Prometheus histograms store; callers that need a time.Duration
// keep their own start time and convert.
type Timer interface {
	Stop() float64
}

// NoOpCollector drops every metric. It backs runs where no metrics
// address is configured.
type NoOpCollector struct{}

// NewNoOpCollector creates a collector that records nothing.
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

func (n *NoOpCollector) IncrementCounter(name string, labels ...string) {}

func (n *NoOpCollector) RecordHistogram(name string, value float64, labels ...string) {}

func (n *NoOpCollector) RecordGauge(name string, value float64, labels ...string) {}

// StartTimer returns a timer that measures but records nothing.
func (n *NoOpCollector) StartTimer(name string) Timer {
	return &noOpTimer{start: time.Now()}
}

type noOpTimer struct {
	start time.Time
}

func (t *noOpTimer) Stop() float64 {
	return time.Since(t.start).Seconds()
}
