// Package redrive re-publishes dead-lettered messages into the live ingress,
// throttled, lease-protected and guarded against replay loops.
package redrive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/ids"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/metadata"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
)

// Worker drains a holding queue into a destination topic. A Worker runs
// sequentially; start one per queue.
type Worker struct {
	queue       HoldingQueue
	publisher   message.Publisher
	destination string
	opts        Options
	logger      logging.ServiceLogger
	metrics     *metrics.Redrive
	delay       time.Duration

	newRunID func() string
	sleep    func(ctx context.Context, d time.Duration)
}

// NewWorker builds a Worker.
func NewWorker(queue HoldingQueue, publisher message.Publisher, destination string, opts Options, logger logging.ServiceLogger) (*Worker, error) {
	if queue == nil {
		return nil, errspkg.ErrQueueRequired
	}
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if destination == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	opts = opts.withDefaults()
	w := &Worker{
		queue:       queue,
		publisher:   publisher,
		destination: destination,
		opts:        opts,
		logger:      logger,
		newRunID:    ids.CreateULID,
		sleep:       sleepContext,
	}
	if opts.QPS > 0 {
		w.delay = time.Duration(float64(time.Second) / opts.QPS)
	}
	return w, nil
}

// WithMetrics counts outcomes in m.
func (w *Worker) WithMetrics(m *metrics.Redrive) *Worker {
	w.metrics = m
	return w
}

// Delay is the pause after each acknowledged message.
func (w *Worker) Delay() time.Duration { return w.delay }

// BatchFor sizes the next pull. The batch never exceeds the remaining quota
// and, when throttled, is small enough that its last message is handled
// before the lease runs out.
func (w *Worker) BatchFor(remaining int) int {
	n := min(w.opts.BatchSize, remaining)
	if w.delay > 0 {
		fits := int((w.opts.MaxLease-w.opts.LeaseMargin)/w.delay) + 1
		if n > fits {
			w.logger.Info("batch size reduced to fit the lease window", logging.LogFields{
				"batch_size": n,
				"reduced_to": fits,
				"qps":        w.opts.QPS,
				"max_lease":  w.opts.MaxLease.String(),
			})
			n = fits
		}
	}
	return max(1, n)
}

// LeaseFor is the lease needed for n messages: the worst-case wait before the
// last one is handled plus the margin, in whole seconds, clamped to the
// queue's bounds.
func (w *Worker) LeaseFor(n int) time.Duration {
	d := time.Duration(max(0, n-1))*w.delay + w.opts.LeaseMargin
	if rounded := d.Truncate(time.Second); rounded < d {
		d = rounded + time.Second
	}
	return min(w.opts.MaxLease, max(w.opts.MinLease, d))
}

// Check probes the queue and the publisher when they support it. Any error is
// fatal for the run.
func (w *Worker) Check(ctx context.Context) error {
	if c, ok := w.queue.(Checker); ok {
		if err := c.Check(ctx); err != nil {
			return fmt.Errorf("holding queue %s unreachable: %w", w.queue.Name(), err)
		}
	}
	if c, ok := w.publisher.(Checker); ok {
		if err := c.Check(ctx); err != nil {
			return fmt.Errorf("destination %s unreachable: %w", w.destination, err)
		}
	}
	return nil
}

// Run executes one bounded run. Per-message failures are counted, never
// returned; the error is only set when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	s := Summary{
		RunID:       w.newRunID(),
		Source:      w.queue.Name(),
		Destination: w.destination,
		DryRun:      w.opts.DryRun,
	}
	log := w.logger.With(logging.LogFields{"run_id": s.RunID, "source": s.Source})
	log.Info("redrive run started", logging.LogFields{
		"destination":  w.destination,
		"max_messages": w.opts.MaxMessages,
		"batch_size":   w.opts.BatchSize,
		"qps":          w.opts.QPS,
		"dry_run":      w.opts.DryRun,
		"ack_skipped":  w.opts.AckSkipped,
	})

	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			s.StopReason, runErr = StopCanceled, err
			break
		}
		remaining := w.opts.MaxMessages - s.Pulled
		if remaining <= 0 {
			s.StopReason = StopQuota
			break
		}

		batch, reason := w.pull(ctx, log, w.BatchFor(remaining))
		if reason != "" {
			s.StopReason = reason
			break
		}
		s.Pulled += len(batch)
		w.metrics.Add(s.Source, metrics.OutcomePulled, len(batch))

		w.extendLease(ctx, log, batch)
		for _, d := range batch {
			w.dispatch(ctx, log, d, &s)
		}
	}

	w.metrics.Finished(s.Source, s.ExitCode())
	log.Info("redrive run finished", s.Fields())
	return s, runErr
}

func (w *Worker) pull(ctx context.Context, log logging.ServiceLogger, n int) ([]Delivery, string) {
	pullCtx, cancel := context.WithTimeout(ctx, w.opts.PullTimeout)
	defer cancel()

	batch, err := w.queue.Pull(pullCtx, n)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, StopCanceled
	case errors.Is(err, context.DeadlineExceeded):
		log.Info("pull timed out, nothing available", nil)
		return nil, StopPullTimeout
	case err != nil:
		log.Error("pull failed", err, nil)
		return nil, StopPullError
	case len(batch) == 0:
		log.Info("holding queue drained", nil)
		return nil, StopEmpty
	}
	return batch, ""
}

func (w *Worker) extendLease(ctx context.Context, log logging.ServiceLogger, batch []Delivery) {
	ackIDs := make([]string, len(batch))
	for i, d := range batch {
		ackIDs[i] = d.AckID
	}
	lease := w.LeaseFor(len(batch))
	if err := w.queue.ExtendLease(ctx, ackIDs, lease); err != nil {
		leaseErr := &errspkg.LeaseExtensionError{Queue: w.queue.Name(), Count: len(ackIDs), Cause: err}
		log.Error("lease extension failed, duplicates are more likely", leaseErr, logging.LogFields{
			"lease": lease.String(),
		})
		w.metrics.LeaseExtensionFailed(w.queue.Name())
	}
}

func (w *Worker) dispatch(ctx context.Context, log logging.ServiceLogger, d Delivery, s *Summary) {
	attrs := metadata.Metadata(d.Attributes)
	fields := logging.LogFields{"message_id": d.MessageID}

	if attrs.IsReplay() {
		s.Skipped++
		w.metrics.Add(s.Source, metrics.OutcomeSkipped, 1)
		log.Info("skipping already replayed message", fields)
		if w.opts.AckSkipped && !w.opts.DryRun {
			if err := w.queue.Acknowledge(ctx, []string{d.AckID}); err != nil {
				log.Error("ack of skipped message failed", &errspkg.AcknowledgeError{MessageID: d.MessageID, Cause: err}, fields)
				return
			}
			s.Acknowledged++
			w.metrics.Add(s.Source, metrics.OutcomeAcknowledged, 1)
		}
		return
	}

	out := w.stamp(attrs, d.MessageID, s.RunID)
	if w.opts.DryRun {
		s.Republished++
		log.Info("dry run, would republish", logging.LogFields{
			"message_id":  d.MessageID,
			"destination": w.destination,
			"attributes":  out,
		})
		return
	}

	if err := w.publish(ctx, d, out); err != nil {
		s.Failed++
		w.metrics.Add(s.Source, metrics.OutcomeFailed, 1)
		log.Error("republish failed, message left for retry", err, fields)
		return
	}
	s.Republished++
	w.metrics.Add(s.Source, metrics.OutcomeRepublished, 1)

	if err := w.queue.Acknowledge(ctx, []string{d.AckID}); err != nil {
		s.Failed++
		w.metrics.Add(s.Source, metrics.OutcomeFailed, 1)
		log.Error("ack failed after republish", &errspkg.AcknowledgeError{MessageID: d.MessageID, Cause: err}, fields)
		return
	}
	s.Acknowledged++
	w.metrics.Add(s.Source, metrics.OutcomeAcknowledged, 1)
	log.Debug("republished", fields)

	if w.delay > 0 {
		w.sleep(ctx, w.delay)
	}
}

// stamp strips dead-letter provenance and marks the copy as a replay.
func (w *Worker) stamp(attrs metadata.Metadata, messageID, runID string) metadata.Metadata {
	out := attrs.Strip(w.opts.StripKeys, w.opts.StripPrefixes)
	out[metadata.KeyReplay] = "true"
	out[metadata.KeyReplayID] = runID
	out[metadata.KeyReplaySource] = w.sourceName()
	if _, ok := out[metadata.KeyMessageID]; !ok && messageID != "" {
		out[metadata.KeyMessageID] = messageID
	}
	return out
}

func (w *Worker) sourceName() string {
	name := w.opts.SourceName
	if name == "" {
		name = w.queue.Name()
	}
	name = strings.TrimRight(name, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// publish sends one copy, giving up after the publish timeout.
func (w *Worker) publish(ctx context.Context, d Delivery, attrs metadata.Metadata) error {
	pubCtx, cancel := context.WithTimeout(ctx, w.opts.PublishTimeout)
	defer cancel()

	msg := message.NewMessage(ids.CreateULID(), d.Data)
	msg.Metadata = metadata.ToWatermill(attrs)
	msg.SetContext(pubCtx)

	done := make(chan error, 1)
	go func() { done <- w.publisher.Publish(w.destination, msg) }()

	var err error
	select {
	case err = <-done:
	case <-pubCtx.Done():
		err = pubCtx.Err()
	}
	if err != nil {
		return &errspkg.PublishError{MessageID: d.MessageID, Topic: w.destination, Cause: err}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
