package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/internal/deadletter"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
	"github.com/drblury/pulseflow/internal/sink"
	"github.com/drblury/pulseflow/internal/store"
)

type captureSink struct {
	mu      sync.Mutex
	records []deadletter.Record
	err     error
}

func (c *captureSink) WriteDeadLetters(_ context.Context, records []deadletter.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, records...)
	return nil
}

func (c *captureSink) all() []deadletter.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]deadletter.Record(nil), c.records...)
}

type failingInserter struct{}

func (failingInserter) InsertRows(context.Context, string, []store.Row) error {
	return errors.New("permission denied for table")
}

type fixture struct {
	pipeline *Pipeline
	store    *store.Store
	dlq      *captureSink
	metrics  *metrics.Stages
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background(), ""))
	return newFixtureWith(t, s, s)
}

func newFixtureWith(t *testing.T, s *store.Store, ins sink.Inserter) *fixture {
	t.Helper()
	m := metrics.NewStages(prometheus.NewRegistry())
	w, err := sink.NewWriter(ins, sink.WithMetrics(m), sink.WithRetry(1, 0))
	require.NoError(t, err)

	dlq := &captureSink{}
	p, err := New(Dependencies{
		Writer:      w,
		DeadLetters: dlq,
		Logger:      logging.NewDiscardLogger(),
		Metrics:     m,
		Concurrency: 4,
	})
	require.NoError(t, err)
	return &fixture{pipeline: p, store: s, dlq: dlq, metrics: m}
}

const stationSnapshot = `{"ingest_ts":"2026-01-24T16:00:00Z","source":"velib","event_type":"station_status_snapshot",` +
	`"key":"velib:station_status_snapshot","payload":{"data":{"stations":[{"station_id":123,"num_bikes_available":7}]}}}`
