// Package sink writes curated rows idempotently and reports the rows that could
// not be written as dead-letter records.
package sink

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/drblury/pulseflow/internal/deadletter"
	"github.com/drblury/pulseflow/internal/envelope"
	"github.com/drblury/pulseflow/internal/mapping"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/ids"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
	"github.com/drblury/pulseflow/internal/stage"
	"github.com/drblury/pulseflow/internal/store"
)

const (
	DefaultMaxAttempts     = 4
	DefaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// Inserter writes rows to a table. *store.Store implements it.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []store.Row) error
}

// Keyed is a curated row with the transport message it came from.
type Keyed struct {
	MessageID string
	Meta      *envelope.Meta
	Row       mapping.Row
}

// Result reports how many rows were written and the records of those that
// durably failed.
type Result struct {
	Written     int
	DeadLetters []deadletter.Record
}

// Writer writes batches of curated rows.
type Writer struct {
	inserter        Inserter
	runner          *stage.Runner
	metrics         *metrics.Stages
	logger          logging.ServiceLogger
	maxAttempts     uint
	initialInterval time.Duration
	isTransient     func(error) bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithRunner shares the stage runner's record builder and failure counters.
func WithRunner(r *stage.Runner) Option {
	return func(w *Writer) { w.runner = r }
}

// WithMetrics counts written rows.
func WithMetrics(m *metrics.Stages) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logging.ServiceLogger) Option {
	return func(w *Writer) { w.logger = l }
}

// WithRetry bounds transient retries per insert.
func WithRetry(maxAttempts int, initialInterval time.Duration) Option {
	return func(w *Writer) {
		if maxAttempts > 0 {
			w.maxAttempts = uint(maxAttempts)
		}
		if initialInterval > 0 {
			w.initialInterval = initialInterval
		}
	}
}

// WithTransientClassifier replaces store.IsTransient.
func WithTransientClassifier(fn func(error) bool) Option {
	return func(w *Writer) { w.isTransient = fn }
}

// NewWriter builds a Writer over inserter.
func NewWriter(inserter Inserter, opts ...Option) (*Writer, error) {
	if inserter == nil {
		return nil, errspkg.ErrInserterRequired
	}
	w := &Writer{
		inserter:        inserter,
		maxAttempts:     DefaultMaxAttempts,
		initialInterval: DefaultInitialInterval,
		isTransient:     store.IsTransient,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.runner == nil {
		w.runner = stage.NewRunner(stage.WithMetrics(w.metrics))
	}
	if w.logger == nil {
		w.logger = logging.NewDiscardLogger()
	}
	return w, nil
}

type pending struct {
	keyed Keyed
	row   store.Row
}

// Write groups rows by table and writes each group in one statement. When a
// group keeps failing, its rows are retried one by one so only the rows the
// destination rejects become sink_insert records.
func (w *Writer) Write(ctx context.Context, rows []Keyed) Result {
	var res Result
	tables, groups := group(rows)
	for _, table := range tables {
		batch := groups[table]
		err := w.insert(ctx, table, batch)
		if err == nil {
			res.Written += len(batch)
			w.metrics.RecordRowsWritten(table, len(batch))
			continue
		}

		w.logger.Error("sink batch failed, isolating rows", err, logging.LogFields{
			"table": table,
			"rows":  len(batch),
		})
		if len(batch) == 1 || ctx.Err() != nil {
			for _, p := range batch {
				res.DeadLetters = append(res.DeadLetters, w.deadLetter(ctx, table, p, err))
			}
			continue
		}
		written := 0
		for _, p := range batch {
			if rowErr := w.insert(ctx, table, []pending{p}); rowErr != nil {
				res.DeadLetters = append(res.DeadLetters, w.deadLetter(ctx, table, p, rowErr))
				continue
			}
			written++
		}
		res.Written += written
		w.metrics.RecordRowsWritten(table, written)
	}
	return res
}

func (w *Writer) insert(ctx context.Context, table string, batch []pending) error {
	rows := make([]store.Row, len(batch))
	for i, p := range batch {
		rows[i] = p.row
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = w.initialInterval
	exp.MaxInterval = defaultMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := w.inserter.InsertRows(ctx, table, rows)
		if err != nil && !w.isTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(exp), backoff.WithMaxTries(w.maxAttempts))
	return err
}

func (w *Writer) deadLetter(ctx context.Context, table string, p pending, cause error) deadletter.Record {
	errs := []string{cause.Error()}
	sinkErr := &errspkg.SinkWriteError{Destination: table, Errors: errs, Cause: cause}
	rec := w.runner.Builder().
		New(deadletter.StageSinkInsert, sinkErr, p.keyed.Row.Raw(), p.keyed.Meta).
		WithRow(table, rowJSON(p.keyed.Row), errs).
		WithMessageID(p.keyed.MessageID)
	w.runner.Observe(ctx, rec)
	return rec
}

func group(rows []Keyed) ([]string, map[string][]pending) {
	var order []string
	groups := make(map[string][]pending)
	for _, k := range rows {
		table := k.Row.Table()
		if _, seen := groups[table]; !seen {
			order = append(order, table)
		}
		groups[table] = append(groups[table], pending{keyed: k, row: toStoreRow(k)})
	}
	return order, groups
}

func toStoreRow(k Keyed) store.Row {
	insertID := ids.InsertID(k.MessageID, k.Row.Table())
	if entity := k.Row.EntityID(); entity != "" {
		insertID = ids.InsertID(k.MessageID, k.Row.Table(), entity)
	}
	return store.Row{
		InsertID:  insertID,
		MessageID: k.MessageID,
		Columns:   k.Row.Columns(),
		Values:    k.Row.Values(),
	}
}

// rowJSON serializes a row as a column to value object.
func rowJSON(r mapping.Row) string {
	cols, vals := r.Columns(), r.Values()
	obj := make(map[string]any, len(cols))
	for i, c := range cols {
		if i < len(vals) {
			obj[c] = vals[i]
		}
	}
	s, err := jsoncodec.MarshalString(obj)
	if err != nil {
		return "{}"
	}
	return s
}
