// Package repositories defines interfaces for database access operations.
package repositories

import (
	"context"
	"database/sql"

	"github.com/fleetq/fleetq/pkg/models"
)

// Connection represents one open connection handle to a fleet endpoint.
type Connection interface {
	// EndpointID returns the id of the endpoint this connection belongs to.
	EndpointID() string
	// DB returns the underlying database handle.
	DB() *sql.DB
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// Close releases the connection and its pool.
	Close() error
}

// ConnectionFactory builds and probes per-endpoint connections.
type ConnectionFactory interface {
	// Open opens a connection to a single endpoint, applying the fixed
	// connect/command timeout and pool defaults.
	Open(ctx context.Context, endpoint models.Endpoint) (Connection, error)
	// Probe runs a side-effect-free connectivity check against every
	// endpoint with bounded fan-out. Results are returned in input order.
	Probe(ctx context.Context, endpoints []models.Endpoint) []models.ProbeResult
}

// TransactionGuard executes a query inside a database-enforced read-only
// transaction that is never committed.
type TransactionGuard interface {
	// RunReadOnly executes the statements of req on conn inside a single
	// read-only transaction and returns the captured outcome. Failures are
	// converted into the outcome, never returned as errors, so one
	// endpoint's failure cannot propagate to another.
	RunReadOnly(ctx context.Context, conn Connection, req models.RunRequest) models.QueryOutcome
}
