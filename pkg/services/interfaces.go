// Package services contains business logic implementations.
package services

import (
	"context"
	"io"
	"time"

	"github.com/fleetq/fleetq/pkg/models"
)

// Validator defines statement classification operations.
type Validator interface {
	Validate(query string) models.ValidationOutcome
	Classify(statement string) models.StatementType
}

// Executor defines multi-endpoint query execution.
type Executor interface {
	Run(ctx context.Context, req models.RunRequest, endpoints []models.Endpoint, onOutcome func(models.QueryOutcome)) error
	RunAll(ctx context.Context, req models.RunRequest, endpoints []models.Endpoint) ([]models.QueryOutcome, error)
	FilterReachable(ctx context.Context, endpoints []models.Endpoint) ([]models.Endpoint, []models.ProbeResult)
}

// Renderer turns outcomes into text.
type Renderer interface {
	RenderBatch(w io.Writer, outcomes []models.QueryOutcome, mode RenderMode) error
	RenderOne(w io.Writer, outcome models.QueryOutcome, mode RenderMode, session *RenderSession) error
}

// RenderMode selects the output format.
type RenderMode int

const (
	// RenderTable prints aligned per-endpoint tables.
	RenderTable RenderMode = iota
	// RenderCSV prints one CSV stream with a client_id column.
	RenderCSV
)

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
