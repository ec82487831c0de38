// Package services contains business logic implementations.
package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/fleetq/fleetq/pkg/errors"
	"github.com/fleetq/fleetq/pkg/models"
	"github.com/fleetq/fleetq/pkg/repositories"
)

// executor implements the Executor interface. Endpoints are processed one
// at a time, strictly in input order, and each outcome is emitted before
// the next endpoint starts. The connectivity pre-check is the only place
// the pipeline fans out.
type executor struct {
	factory    repositories.ConnectionFactory
	guard      repositories.TransactionGuard
	classifier *StatementClassifier
	logger     Logger
	metrics    MetricsCollector
}

// NewExecutor creates a new multi-endpoint executor.
func NewExecutor(
	factory repositories.ConnectionFactory,
	guard repositories.TransactionGuard,
	logger Logger,
	metrics MetricsCollector,
) Executor {
	return &executor{
		factory:    factory,
		guard:      guard,
		classifier: NewStatementClassifier(),
		logger:     logger,
		metrics:    metrics,
	}
}

// Run validates the script, then executes it against every endpoint in
// input order, invoking onOutcome for each endpoint before moving to the
// next. Per-endpoint failures are captured into their outcome and never
// abort the remaining endpoints.
func (e *executor) Run(ctx context.Context, req models.RunRequest, endpoints []models.Endpoint, onOutcome func(models.QueryOutcome)) error {
	timer := e.metrics.StartTimer("run_duration")
	defer timer.Stop()

	runID := uuid.New().String()

	validation := e.classifier.Validate(req.Query)
	if !validation.IsValid {
		e.metrics.IncrementCounter("run_validation_failures")
		e.logger.Error("Query rejected by classifier",
			"run_id", runID,
			"error", validation.ErrorMessage)
		return errors.New(errors.CodeValidationFailed, validation.ErrorMessage)
	}

	// Execute the statements as split by the classifier so the guard never
	// has to re-parse the script.
	if len(req.Statements) == 0 {
		req.Statements = make([]string, 0, len(validation.Statements))
		for _, stmt := range validation.Statements {
			req.Statements = append(req.Statements, stmt.RawText)
		}
	}

	e.logger.Info("Starting run",
		"run_id", runID,
		"endpoints", len(endpoints),
		"statements", validation.StatementCount)

	for _, endpoint := range endpoints {
		outcome := e.runOne(ctx, req, endpoint)
		if outcome.Success {
			e.metrics.IncrementCounter("endpoint_successes")
		} else {
			e.metrics.IncrementCounter("endpoint_failures")
		}
		e.metrics.RecordHistogram("endpoint_duration_seconds", outcome.Elapsed.Seconds())
		onOutcome(outcome)
	}

	e.logger.Info("Run complete", "run_id", runID)

	return nil
}

// RunAll is the batch form of Run: outcomes are collected in input order.
func (e *executor) RunAll(ctx context.Context, req models.RunRequest, endpoints []models.Endpoint) ([]models.QueryOutcome, error) {
	outcomes := make([]models.QueryOutcome, 0, len(endpoints))
	err := e.Run(ctx, req, endpoints, func(outcome models.QueryOutcome) {
		outcomes = append(outcomes, outcome)
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// runOne opens a connection to a single endpoint and executes the request
// under the read-only guard. Every failure ends up inside the outcome.
func (e *executor) runOne(ctx context.Context, req models.RunRequest, endpoint models.Endpoint) models.QueryOutcome {
	e.logger.Debug("Executing on endpoint", "endpoint_id", endpoint.ID)

	conn, err := e.factory.Open(ctx, endpoint)
	if err != nil {
		e.logger.Error("Failed to open connection", "endpoint_id", endpoint.ID, "error", err)
		return models.FailedOutcome(endpoint.ID, err, 0)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			e.logger.Warn("Failed to close connection", "endpoint_id", endpoint.ID, "error", closeErr)
		}
	}()

	return e.guard.RunReadOnly(ctx, conn, req)
}

// FilterReachable probes every endpoint and returns the reachable subset,
// preserving input order, plus the full probe report. Endpoints excluded
// here never appear in a run's outcome stream.
func (e *executor) FilterReachable(ctx context.Context, endpoints []models.Endpoint) ([]models.Endpoint, []models.ProbeResult) {
	probes := e.factory.Probe(ctx, endpoints)

	reachable := make([]models.Endpoint, 0, len(endpoints))
	for i, probe := range probes {
		if probe.Success {
			reachable = append(reachable, endpoints[i])
			continue
		}
		e.metrics.IncrementCounter("endpoints_excluded")
		e.logger.Warn("Excluding unreachable endpoint",
			"endpoint_id", probe.EndpointID,
			"error", probe.Message)
	}

	return reachable, probes
}
