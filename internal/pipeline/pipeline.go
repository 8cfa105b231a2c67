// Package pipeline runs raw messages through decode, normalize, map and sink,
// capturing every stage failure as a dead-letter record.
package pipeline

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/drblury/pulseflow/internal/deadletter"
	"github.com/drblury/pulseflow/internal/envelope"
	"github.com/drblury/pulseflow/internal/mapping"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
	"github.com/drblury/pulseflow/internal/sink"
	"github.com/drblury/pulseflow/internal/stage"
)

// DefaultConcurrency bounds ProcessBatch when none is configured.
const DefaultConcurrency = 8

// Dependencies are the collaborators of a Pipeline. Writer and Logger are
// required; the rest have defaults.
type Dependencies struct {
	Runner      *stage.Runner
	Mappers     mapping.Set
	Writer      *sink.Writer
	DeadLetters deadletter.Sink
	Logger      logging.ServiceLogger
	Metrics     *metrics.Stages
	Concurrency int
	// RawLanding also writes every normalized envelope to the raw events table.
	RawLanding bool
}

// Pipeline processes independent units of input. It holds no per-unit state
// and is safe for concurrent use.
type Pipeline struct {
	runner      *stage.Runner
	mappers     mapping.Set
	writer      *sink.Writer
	deadLetters deadletter.Sink
	logger      logging.ServiceLogger
	metrics     *metrics.Stages
	concurrency int
}

// New builds a Pipeline. Without a dead-letter sink, records are logged and dropped.
func New(deps Dependencies) (*Pipeline, error) {
	if deps.Writer == nil {
		return nil, errspkg.ErrInserterRequired
	}
	if deps.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	p := &Pipeline{
		runner:      deps.Runner,
		mappers:     deps.Mappers,
		writer:      deps.Writer,
		deadLetters: deps.DeadLetters,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		concurrency: deps.Concurrency,
	}
	if p.runner == nil {
		p.runner = stage.NewRunner(stage.WithMetrics(p.metrics))
	}
	if p.mappers == nil {
		p.mappers = mapping.DefaultSet()
	}
	if deps.RawLanding {
		p.mappers = append(mapping.Set{mapping.RawEventMapper()}, p.mappers...)
	}
	if p.deadLetters == nil {
		p.deadLetters = deadletter.NewLogSink(p.logger)
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	return p, nil
}

// Input is one unit of work: a message body and its transport attributes.
type Input struct {
	MessageID  string
	Data       any
	Attributes map[string]string
}

// Outcome is the result of processing one Input.
type Outcome struct {
	Envelope    *envelope.Envelope
	Rows        []mapping.Row
	Written     int
	DeadLetters []deadletter.Record
	// Recorded is true when every dead-letter record reached its sink.
	Recorded bool
	Err      error
}

// Failure names the failure class: decode, validation, shape, sink or
// internal. It is empty on success.
func (o Outcome) Failure() string {
	return stage.Classify(o.Err)
}

// Process runs one input end to end.
func (p *Pipeline) Process(ctx context.Context, in Input) Outcome {
	src := stage.Source{Raw: in.Data, MessageID: in.MessageID}

	parsed := stage.Run(ctx, p.runner, deadletter.StageParseNormalize, in.Data, src,
		func(_ context.Context, data any) (envelope.Envelope, error) {
			return envelope.DecodeAndNormalize(data)
		})
	if !parsed.OK() {
		return p.fail(ctx, Outcome{}, parsed.Err, *parsed.DeadLetter)
	}

	env := parsed.Value
	out := Outcome{Envelope: &env}
	src.Meta = env.Meta()

	mapped := stage.Run(ctx, p.runner, deadletter.StageDomainMapping, env, src,
		func(_ context.Context, e envelope.Envelope) ([]mapping.Row, error) {
			seq, err := p.mappers.Map(e)
			if err != nil {
				return nil, err
			}
			return mapping.Collect(seq), nil
		})
	if !mapped.OK() {
		return p.fail(ctx, out, mapped.Err, *mapped.DeadLetter)
	}
	out.Rows = mapped.Value
	if len(out.Rows) == 0 {
		return out
	}

	keyed := make([]sink.Keyed, len(out.Rows))
	for i, r := range out.Rows {
		keyed[i] = sink.Keyed{MessageID: in.MessageID, Meta: src.Meta, Row: r}
	}
	res := p.writer.Write(ctx, keyed)
	out.Written = res.Written
	if len(res.DeadLetters) > 0 {
		return p.fail(ctx, out, sinkFailure(res.DeadLetters), res.DeadLetters...)
	}
	return out
}

// ProcessBatch processes inputs in parallel. Outcomes are in input order.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs []Input) []Outcome {
	outcomes := make([]Outcome, len(inputs))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			outcomes[i] = p.Process(ctx, in)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) fail(ctx context.Context, out Outcome, err error, records ...deadletter.Record) Outcome {
	out.Err = err
	out.DeadLetters = records
	out.Recorded = p.emit(ctx, records)
	return out
}

// emit hands records to the dead-letter sink and reports whether they were kept.
func (p *Pipeline) emit(ctx context.Context, records []deadletter.Record) bool {
	if err := p.deadLetters.WriteDeadLetters(ctx, records); err != nil {
		p.logger.Error("dead-letter write failed", err, logging.LogFields{
			"records": len(records),
			"stage":   string(records[0].Stage),
		})
		p.metrics.RecordDeadLetters(0, len(records))
		return false
	}
	p.metrics.RecordDeadLetters(len(records), 0)
	return true
}

func sinkFailure(records []deadletter.Record) error {
	var destinations []string
	seen := make(map[string]bool)
	errs := make([]string, 0, len(records))
	for _, r := range records {
		if !seen[r.Destination] {
			seen[r.Destination] = true
			destinations = append(destinations, r.Destination)
		}
		errs = append(errs, r.ErrorMessage)
	}
	return &errspkg.SinkWriteError{Destination: strings.Join(destinations, ","), Errors: errs}
}
