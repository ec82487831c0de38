// Package postgres provides PostgreSQL-specific repository implementations.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetq/fleetq/pkg/errors"
	"github.com/fleetq/fleetq/pkg/models"
	"github.com/fleetq/fleetq/pkg/repositories"
)

// readOnlyDirective is issued as the first statement of every guarded
// transaction so the server itself rejects writes for its duration.
const readOnlyDirective = "SET TRANSACTION READ ONLY"

// transactionGuard implements repositories.TransactionGuard.
type transactionGuard struct {
	commandTimeout time.Duration
	logger         zerolog.Logger
}

// NewTransactionGuard creates a new read-only transaction guard.
func NewTransactionGuard(commandTimeout time.Duration, logger zerolog.Logger) repositories.TransactionGuard {
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	}
	return &transactionGuard{
		commandTimeout: commandTimeout,
		logger:         logger,
	}
}

// RunReadOnly executes the statements of req inside a single read-only
// transaction on conn. The transaction is only ever rolled back, never
// committed, so no side effect can persist even if a write slipped past
// classification. Every failure is captured into the returned outcome.
func (g *transactionGuard) RunReadOnly(ctx context.Context, conn repositories.Connection, req models.RunRequest) models.QueryOutcome {
	start := time.Now()
	endpointID := conn.EndpointID()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.commandTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g.logger.Debug().
		Str("endpoint_id", endpointID).
		Int("statement_count", len(req.StatementsOrQuery())).
		Msg("Starting guarded transaction")

	tx, err := conn.DB().BeginTx(runCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		g.logger.Error().Err(err).Str("endpoint_id", endpointID).Msg("Failed to begin transaction")
		return models.FailedOutcome(endpointID,
			errors.Wrap(err, errors.CodeTransactionFailed, "failed to begin read-only transaction"),
			time.Since(start))
	}
	// Rollback is the only exit; the deferred call also covers panics
	// inside row scanning.
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(runCtx, readOnlyDirective); err != nil {
		g.logger.Error().Err(err).Str("endpoint_id", endpointID).Msg("Failed to set transaction read-only")
		return models.FailedOutcome(endpointID,
			errors.Wrap(err, errors.CodeTransactionFailed, "failed to enforce read-only transaction"),
			time.Since(start))
	}

	statements := req.StatementsOrQuery()

	var (
		columns []string
		snap    []models.Row
	)

	// Statements run one at a time in the same transaction; the outcome
	// keeps the result set of the last one.
	for _, stmt := range statements {
		rows, err := tx.QueryContext(runCtx, stmt)
		if err != nil {
			g.logger.Error().Err(err).Str("endpoint_id", endpointID).Msg("Query failed")
			return models.FailedOutcome(endpointID, g.wrapQueryError(err), time.Since(start))
		}

		columns, snap, err = snapshotRows(rows)
		_ = rows.Close()
		if err != nil {
			g.logger.Error().Err(err).Str("endpoint_id", endpointID).Msg("Failed to read result set")
			return models.FailedOutcome(endpointID, g.wrapQueryError(err), time.Since(start))
		}
	}

	elapsed := time.Since(start)
	g.logger.Info().
		Str("endpoint_id", endpointID).
		Int("rows", len(snap)).
		Dur("elapsed", elapsed).
		Msg("Query executed")

	return models.QueryOutcome{
		EndpointID: endpointID,
		Success:    true,
		Columns:    columns,
		Rows:       snap,
		Elapsed:    elapsed,
	}
}

// snapshotRows drains a result set into memory. Column names come from the
// result-set metadata, never the query text. NULLs stay nil; []byte values
// are materialized as strings so the snapshot outlives the driver buffers.
func snapshotRows(rows *sql.Rows) ([]string, []models.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var snap []models.Row
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, err
		}
		row := make(models.Row, len(columns))
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		snap = append(snap, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return columns, snap, nil
}

// wrapQueryError maps driver errors onto fleetq error codes.
func (g *transactionGuard) wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || strings.Contains(errStr, "context deadline exceeded"):
		return errors.Wrap(err, errors.CodeDeadlineExceeded, "query timed out")
	case strings.Contains(errStr, "permission denied"):
		return errors.Wrap(err, errors.CodePermissionDenied, "permission denied")
	case strings.Contains(errStr, "read-only transaction"):
		return errors.Wrap(err, errors.CodeQueryFailed, "statement rejected by read-only transaction")
	case strings.Contains(errStr, "connection"):
		return errors.Wrap(err, errors.CodeConnectionFailed, "database connection error")
	default:
		return errors.Wrap(err, errors.CodeQueryFailed, "query failed")
	}
}
