// Package main provides the entry point for the fleetq fleet query runner.
package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetq/fleetq/pkg/infrastructure/metrics"
	"github.com/fleetq/fleetq/pkg/services"
)

// loggerAdapter adapts zerolog to the services Logger interface.
type loggerAdapter struct {
	logger zerolog.Logger
}

func (l *loggerAdapter) Debug(msg string, keysAndValues ...any) {
	event := l.logger.Debug()
	l.addFields(event, keysAndValues...)
	event.Msg(msg)
}

func (l *loggerAdapter) Info(msg string, keysAndValues ...any) {
	event := l.logger.Info()
	l.addFields(event, keysAndValues...)
	event.Msg(msg)
}

func (l *loggerAdapter) Warn(msg string, keysAndValues ...any) {
	event := l.logger.Warn()
	l.addFields(event, keysAndValues...)
	event.Msg(msg)
}

func (l *loggerAdapter) Error(msg string, keysAndValues ...any) {
	event := l.logger.Error()
	l.addFields(event, keysAndValues...)
	event.Msg(msg)
}

func (l *loggerAdapter) addFields(event *zerolog.Event, keysAndValues ...any) {
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			key, ok := keysAndValues[i].(string)
			if !ok {
				continue
			}
			value := keysAndValues[i+1]

			switch v := value.(type) {
			case string:
				event.Str(key, v)
			case int:
				event.Int(key, v)
			case int64:
				event.Int64(key, v)
			case float64:
				event.Float64(key, v)
			case bool:
				event.Bool(key, v)
			case error:
				event.Err(v)
			case time.Duration:
				event.Dur(key, v)
			case time.Time:
				event.Time(key, v)
			default:
				event.Interface(key, v)
			}
		}
	}
}

// metricsAdapter adapts metrics.Collector to the services.MetricsCollector
// interface.
type metricsAdapter struct {
	collector metrics.Collector
}

func (m *metricsAdapter) IncrementCounter(name string, labels ...string) {
	m.collector.IncrementCounter(name, labels...)
}

func (m *metricsAdapter) RecordHistogram(name string, value float64, labels ...string) {
	m.collector.RecordHistogram(name, value, labels...)
}

func (m *metricsAdapter) RecordGauge(name string, value float64, labels ...string) {
	m.collector.RecordGauge(name, value, labels...)
}

func (m *metricsAdapter) StartTimer(name string) services.Timer {
	return &timerAdapter{timer: m.collector.StartTimer(name), start: time.Now()}
}

// timerAdapter converts a seconds-based metrics timer to a duration timer.
type timerAdapter struct {
	timer metrics.Timer
	start time.Time
}

func (t *timerAdapter) Stop() time.Duration {
	t.timer.Stop()
	return time.Since(t.start)
}
