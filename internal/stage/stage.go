// Package stage runs pipeline steps and turns their failures into dead-letter
// records instead of errors, so one bad input never stops the stream.
package stage

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/pulseflow/internal/deadletter"
	"github.com/drblury/pulseflow/internal/envelope"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
)

// Source is what is known about the input when a stage runs.
type Source struct {
	Raw       any
	Meta      *envelope.Meta
	MessageID string
}

// Result is either the stage output or the dead-letter record of its failure.
type Result[T any] struct {
	Value      T
	DeadLetter *deadletter.Record
	Err        error
}

// OK reports whether the stage succeeded.
func (r Result[T]) OK() bool { return r.DeadLetter == nil }

// PanicError wraps a value recovered from a panicking stage.
type PanicError struct {
	Stage deadletter.Stage
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Stage, e.Value)
}

// Runner executes stages. It is safe for concurrent use.
type Runner struct {
	metrics *metrics.Stages
	builder deadletter.Builder
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics counts failures in m.
func WithMetrics(m *metrics.Stages) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock overrides the capture time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.builder.Now = now }
}

// WithMaxRawBytes bounds the raw copy kept in records.
func WithMaxRawBytes(n int) Option {
	return func(r *Runner) { r.builder.MaxRawBytes = n }
}

// NewRunner builds a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes fn on in. A returned error or a panic yields exactly one
// dead-letter record tagged with st; a success yields none.
func Run[I, O any](ctx context.Context, r *Runner, st deadletter.Stage, in I, src Source, fn func(context.Context, I) (O, error)) (res Result[O]) {
	defer func() {
		if p := recover(); p != nil {
			var zero O
			err := &PanicError{Stage: st, Value: p}
			rec := r.Fail(ctx, st, err, src)
			res = Result[O]{Value: zero, DeadLetter: &rec, Err: err}
		}
	}()

	out, err := fn(ctx, in)
	if err != nil {
		var zero O
		rec := r.Fail(ctx, st, err, src)
		return Result[O]{Value: zero, DeadLetter: &rec, Err: err}
	}
	return Result[O]{Value: out}
}

// Fail records one failure of st and returns its dead-letter record.
func (r *Runner) Fail(ctx context.Context, st deadletter.Stage, err error, src Source) deadletter.Record {
	rec := r.builder.New(st, err, deadletter.RawString(src.Raw), src.Meta).WithMessageID(src.MessageID)
	r.Observe(ctx, rec)
	return rec
}

// Observe counts an already built record and annotates the active span.
func (r *Runner) Observe(ctx context.Context, rec deadletter.Record) {
	r.metrics.RecordFailure(string(rec.Stage), rec.ErrorType)

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("pulseflow.stage.failure", trace.WithAttributes(
		attribute.String("stage", string(rec.Stage)),
		attribute.String("error_type", rec.ErrorType),
		attribute.String("error_message", rec.ErrorMessage),
	))
	span.SetStatus(codes.Error, rec.ErrorType)
}

// Builder exposes the record builder so other stages share limits and clock.
func (r *Runner) Builder() deadletter.Builder { return r.builder }

// Classify maps err onto the failure class reported to HTTP callers.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errspkg.IsStageFailure(err):
		switch errspkg.TypeName(err) {
		case "DecodeError":
			return "decode"
		case "ValidationError":
			return "validation"
		default:
			return "shape"
		}
	case errspkg.TypeName(err) == "SinkWriteError":
		return "sink"
	default:
		return "internal"
	}
}
