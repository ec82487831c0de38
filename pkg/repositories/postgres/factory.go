// Package postgres provides PostgreSQL-specific repository implementations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fleetq/fleetq/pkg/errors"
	"github.com/fleetq/fleetq/pkg/models"
	"github.com/fleetq/fleetq/pkg/repositories"
)

// Fixed connection defaults applied to every endpoint.
const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultCommandTimeout  = 30 * time.Second
	DefaultProbeWidth      = 5
	defaultMaxOpenConns    = 5
	defaultMaxIdleConns    = 1
	defaultConnMaxLifetime = 5 * time.Minute
)

// Config holds connection factory settings.
type Config struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	ProbeWidth     int64
	// DriverName overrides the SQL driver, used by tests. Defaults to pgx.
	DriverName string
}

// withDefaults fills in zero-valued settings.
func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.ProbeWidth <= 0 {
		c.ProbeWidth = DefaultProbeWidth
	}
	if c.DriverName == "" {
		c.DriverName = "pgx"
	}
	return c
}

// connectionFactory implements repositories.ConnectionFactory for PostgreSQL.
type connectionFactory struct {
	cfg    Config
	logger zerolog.Logger
}

// NewConnectionFactory creates a new PostgreSQL connection factory.
func NewConnectionFactory(cfg Config, logger zerolog.Logger) repositories.ConnectionFactory {
	return &connectionFactory{
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Open opens a connection to a single endpoint.
func (f *connectionFactory) Open(ctx context.Context, endpoint models.Endpoint) (repositories.Connection, error) {
	f.logger.Debug().
		Str("endpoint_id", endpoint.ID).
		Str("host", endpoint.Host).
		Int("port", endpoint.Port).
		Str("database", endpoint.Database).
		Msg("Opening connection")

	db, err := sql.Open(f.cfg.DriverName, f.dsn(endpoint))
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConnectionFailed, "failed to open connection to endpoint %s", endpoint.ID)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		f.logger.Error().Err(err).Str("endpoint_id", endpoint.ID).Msg("Connection failed")
		return nil, errors.Wrapf(err, errors.CodeConnectionFailed, "endpoint %s is unreachable", endpoint.ID)
	}

	return &connection{
		endpointID: endpoint.ID,
		db:         db,
	}, nil
}

// Probe runs a side-effect-free connectivity check against every endpoint
// with bounded fan-out. At most ProbeWidth probes are in flight at once;
// results are returned in input order.
func (f *connectionFactory) Probe(ctx context.Context, endpoints []models.Endpoint) []models.ProbeResult {
	results := make([]models.ProbeResult, len(endpoints))
	sem := semaphore.NewWeighted(f.cfg.ProbeWidth)

	for i, endpoint := range endpoints {
		if err := sem.Acquire(ctx, 1); err != nil {
			// The run was canceled or timed out before this probe started.
			results[i] = models.ProbeResult{
				EndpointID: endpoint.ID,
				Success:    false,
				Message:    err.Error(),
				ErrorCode:  errors.CodeUnreachable,
			}
			continue
		}
		go func(i int, endpoint models.Endpoint) {
			defer sem.Release(1)
			results[i] = f.probeOne(ctx, endpoint)
		}(i, endpoint)
	}

	// Wait for every in-flight probe before handing the slice back.
	_ = sem.Acquire(context.Background(), f.cfg.ProbeWidth)

	return results
}

// probeOne checks a single endpoint with a short-lived connection.
func (f *connectionFactory) probeOne(ctx context.Context, endpoint models.Endpoint) models.ProbeResult {
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
	defer cancel()

	conn, err := f.Open(probeCtx, endpoint)
	if err != nil {
		return models.ProbeResult{
			EndpointID: endpoint.ID,
			Success:    false,
			Message:    errors.GetMessage(err),
			ErrorCode:  errors.GetCode(err),
			Elapsed:    time.Since(start),
		}
	}
	defer func() { _ = conn.Close() }()

	var one int
	if err := conn.DB().QueryRowContext(probeCtx, "SELECT 1").Scan(&one); err != nil {
		return models.ProbeResult{
			EndpointID: endpoint.ID,
			Success:    false,
			Message:    err.Error(),
			ErrorCode:  errors.CodeQueryFailed,
			Elapsed:    time.Since(start),
		}
	}

	// Server version is best effort; a probe that can SELECT 1 is healthy.
	var version string
	if err := conn.DB().QueryRowContext(probeCtx, "SELECT version()").Scan(&version); err != nil {
		f.logger.Debug().Err(err).Str("endpoint_id", endpoint.ID).Msg("Version lookup failed")
	}

	return models.ProbeResult{
		EndpointID:    endpoint.ID,
		Success:       true,
		Message:       "ok",
		ServerVersion: version,
		Elapsed:       time.Since(start),
	}
}

// dsn builds a keyword/value DSN for one endpoint with the fixed defaults.
func (f *connectionFactory) dsn(endpoint models.Endpoint) string {
	parts := []string{
		"host=" + quoteDSNValue(endpoint.Host),
		fmt.Sprintf("port=%d", endpoint.Port),
		"dbname=" + quoteDSNValue(endpoint.Database),
		"user=" + quoteDSNValue(endpoint.Username),
		"sslmode=prefer",
		fmt.Sprintf("connect_timeout=%d", int(f.cfg.ConnectTimeout.Seconds())),
		fmt.Sprintf("statement_timeout=%d", f.cfg.CommandTimeout.Milliseconds()),
	}
	if endpoint.Password != "" {
		parts = append(parts, "password="+quoteDSNValue(endpoint.Password))
	}
	return strings.Join(parts, " ")
}

// quoteDSNValue quotes a DSN value when it contains characters the
// keyword/value format cannot carry bare.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// connection implements repositories.Connection.
type connection struct {
	endpointID string
	db         *sql.DB
}

// EndpointID returns the id of the endpoint this connection belongs to.
func (c *connection) EndpointID() string {
	return c.endpointID
}

// DB returns the underlying database handle.
func (c *connection) DB() *sql.DB {
	return c.db
}

// Ping verifies the connection is alive.
func (c *connection) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrapf(err, errors.CodeConnectionFailed, "endpoint %s ping failed", c.endpointID)
	}
	return nil
}

// Close releases the connection and its pool.
func (c *connection) Close() error {
	return c.db.Close()
}
