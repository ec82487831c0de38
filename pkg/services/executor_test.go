package services

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetq/fleetq/pkg/errors"
	"github.com/fleetq/fleetq/pkg/models"
	"github.com/fleetq/fleetq/pkg/repositories"
)

// fakeConn implements repositories.Connection for executor tests.
type fakeConn struct {
	id     string
	closed atomic.Bool
}

func (c *fakeConn) EndpointID() string { return c.id }

func (c *fakeConn) DB() *sql.DB { return nil }

func (c *fakeConn) Ping(_ context.Context) error { return nil }

func (c *fakeConn) Close() error { c.closed.Store(true); return nil }

// fakeFactory implements repositories.ConnectionFactory.
type fakeFactory struct {
	openErr   map[string]error
	probes    []models.ProbeResult
	openCalls atomic.Int32
	conns     []*fakeConn
}

func (f *fakeFactory) Open(_ context.Context, endpoint models.Endpoint) (repositories.Connection, error) {
	f.openCalls.Add(1)
	if err, ok := f.openErr[endpoint.ID]; ok {
		return nil, err
	}
	conn := &fakeConn{id: endpoint.ID}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeFactory) Probe(_ context.Context, endpoints []models.Endpoint) []models.ProbeResult {
	return f.probes
}

// fakeGuard implements repositories.TransactionGuard with per-endpoint
// artificial latency, so fast endpoints would overtake slow ones if the
// executor were not strictly sequential.
type fakeGuard struct {
	delays map[string]time.Duration
	fail   map[string]string
}

func (g *fakeGuard) RunReadOnly(_ context.Context, conn repositories.Connection, req models.RunRequest) models.QueryOutcome {
	id := conn.EndpointID()
	if d, ok := g.delays[id]; ok {
		time.Sleep(d)
	}
	if msg, ok := g.fail[id]; ok {
		return models.QueryOutcome{
			EndpointID:   id,
			Success:      false,
			ErrorMessage: msg,
		}
	}
	return models.QueryOutcome{
		EndpointID: id,
		Success:    true,
		Columns:    []string{"n"},
		Rows:       []models.Row{{int64(1)}},
		Elapsed:    time.Millisecond,
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

func (nopLogger) Info(string, ...any) {}

func (nopLogger) Warn(string, ...any) {}

func (nopLogger) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) IncrementCounter(string, ...string) {}

func (nopMetrics) RecordHistogram(string, float64, ...string) {}

func (nopMetrics) RecordGauge(string, float64, ...string) {}

func (nopMetrics) StartTimer(string) Timer { return nopTimer{} }

type nopTimer struct{}

func (nopTimer) Stop() time.Duration { return 0 }

func endpoints(ids ...string) []models.Endpoint {
	eps := make([]models.Endpoint, 0, len(ids))
	for _, id := range ids {
		eps = append(eps, models.Endpoint{
			ID:       id,
			Host:     "localhost",
			Port:     5432,
			Database: "app",
			Username: "reader",
		})
	}
	return eps
}

func newTestExecutor(factory repositories.ConnectionFactory, guard repositories.TransactionGuard) Executor {
	return NewExecutor(factory, guard, nopLogger{}, nopMetrics{})
}

func TestExecutor_OutcomesInInputOrder(t *testing.T) {
	// A is slowest, C is fastest; delivery order must still be A, B, C.
	factory := &fakeFactory{}
	guard := &fakeGuard{delays: map[string]time.Duration{
		"A": 30 * time.Millisecond,
		"B": 10 * time.Millisecond,
		"C": 0,
	}}
	executor := newTestExecutor(factory, guard)

	var order []string
	err := executor.Run(context.Background(),
		models.RunRequest{Query: "SELECT 1"},
		endpoints("A", "B", "C"),
		func(outcome models.QueryOutcome) {
			order = append(order, outcome.EndpointID)
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, order)
}

func TestExecutor_ValidationGate(t *testing.T) {
	factory := &fakeFactory{}
	executor := newTestExecutor(factory, &fakeGuard{})

	_, err := executor.RunAll(context.Background(),
		models.RunRequest{Query: "DELETE FROM t;"},
		endpoints("A"))

	require.Error(t, err)
	assert.True(t, errors.IsValidationFailed(err))
	assert.Contains(t, err.Error(), "DML")
	// The classifier gate fired before any connection was opened.
	assert.Zero(t, factory.openCalls.Load())
}

func TestExecutor_EmptyQueryRejected(t *testing.T) {
	executor := newTestExecutor(&fakeFactory{}, &fakeGuard{})

	_, err := executor.RunAll(context.Background(),
		models.RunRequest{Query: "  -- nothing\n"},
		endpoints("A"))

	require.Error(t, err)
	assert.True(t, errors.IsValidationFailed(err))
}

func TestExecutor_FailureIsolation(t *testing.T) {
	factory := &fakeFactory{openErr: map[string]error{
		"B": errors.New(errors.CodeConnectionFailed, "connection refused"),
	}}
	guard := &fakeGuard{fail: map[string]string{
		"C": "canceling statement due to statement timeout",
	}}
	executor := newTestExecutor(factory, guard)

	outcomes, err := executor.RunAll(context.Background(),
		models.RunRequest{Query: "SELECT 1"},
		endpoints("A", "B", "C", "D"))

	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.NotEmpty(t, outcomes[1].ErrorMessage)
	assert.Empty(t, outcomes[1].Columns)
	assert.Empty(t, outcomes[1].Rows)
	assert.False(t, outcomes[2].Success)
	assert.Contains(t, outcomes[2].ErrorMessage, "timeout")
	assert.True(t, outcomes[3].Success)
}

func TestExecutor_TwoEndpointScenario(t *testing.T) {
	factory := &fakeFactory{}
	executor := newTestExecutor(factory, &fakeGuard{})

	outcomes, err := executor.RunAll(context.Background(),
		models.RunRequest{Query: "SELECT 1 as n;"},
		endpoints("alpha", "beta"))

	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		assert.True(t, outcome.Success)
		assert.Equal(t, []string{"n"}, outcome.Columns)
		require.Len(t, outcome.Rows, 1)
		assert.EqualValues(t, 1, outcome.Rows[0][0])
	}
}

func TestExecutor_ConnectionsClosed(t *testing.T) {
	factory := &fakeFactory{}
	executor := newTestExecutor(factory, &fakeGuard{})

	_, err := executor.RunAll(context.Background(),
		models.RunRequest{Query: "SELECT 1"},
		endpoints("A", "B"))

	require.NoError(t, err)
	require.Len(t, factory.conns, 2)
	for _, conn := range factory.conns {
		assert.True(t, conn.closed.Load(), "connection %s not closed", conn.id)
	}
}

func TestExecutor_FilterReachable(t *testing.T) {
	factory := &fakeFactory{probes: []models.ProbeResult{
		{EndpointID: "A", Success: true},
		{EndpointID: "B", Success: false, Message: "connection refused"},
		{EndpointID: "C", Success: true},
	}}
	executor := newTestExecutor(factory, &fakeGuard{})

	reachable, probes := executor.FilterReachable(context.Background(), endpoints("A", "B", "C"))

	require.Len(t, probes, 3)
	require.Len(t, reachable, 2)
	assert.Equal(t, "A", reachable[0].ID)
	assert.Equal(t, "C", reachable[1].ID)
}

func TestExecutor_UnreachableEndpointExcludedFromRun(t *testing.T) {
	factory := &fakeFactory{probes: []models.ProbeResult{
		{EndpointID: "down", Success: false, Message: "no route to host"},
		{EndpointID: "up", Success: true},
	}}
	executor := newTestExecutor(factory, &fakeGuard{})

	ctx := context.Background()
	reachable, _ := executor.FilterReachable(ctx, endpoints("down", "up"))
	outcomes, err := executor.RunAll(ctx, models.RunRequest{Query: "SELECT 1"}, reachable)

	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "up", outcomes[0].EndpointID)
}
