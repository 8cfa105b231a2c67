package holding

import (
	"context"
	"strconv"
	"time"

	"github.com/drblury/pulseflow/internal/redrive"
	"github.com/drblury/pulseflow/internal/runtime/metadata"
	"github.com/drblury/pulseflow/transport"
)

// DefaultInitialLease covers the gap between a pull and the worker's first
// lease extension.
const DefaultInitialLease = time.Minute

// SQLQueue drains the dead_letter_queue table of the sqlite and postgres
// transports for one original topic.
type SQLQueue struct {
	leaser       transport.DLQLeaser
	topic        string
	initialLease time.Duration
}

// NewSQLQueue returns a queue over the dead letters of topic.
func NewSQLQueue(leaser transport.DLQLeaser, topic string) *SQLQueue {
	return &SQLQueue{leaser: leaser, topic: topic, initialLease: DefaultInitialLease}
}

// Name is the original topic.
func (q *SQLQueue) Name() string { return q.topic }

// Pull leases up to max dead letters, oldest first.
func (q *SQLQueue) Pull(ctx context.Context, max int) ([]redrive.Delivery, error) {
	msgs, err := q.leaser.LeaseDLQ(ctx, q.topic, max, q.initialLease)
	if err != nil {
		return nil, err
	}
	out := make([]redrive.Delivery, 0, len(msgs))
	for _, m := range msgs {
		attrs := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			attrs[k] = v
		}
		messageID := attrs[metadata.KeyMessageID]
		if messageID == "" {
			messageID = m.UUID
		}
		out = append(out, redrive.Delivery{
			AckID:      strconv.FormatInt(m.ID, 10),
			MessageID:  messageID,
			Data:       m.Payload,
			Attributes: attrs,
		})
	}
	return out, nil
}

func (q *SQLQueue) ExtendLease(ctx context.Context, ackIDs []string, d time.Duration) error {
	ids, err := parseIDs(ackIDs)
	if err != nil {
		return err
	}
	return q.leaser.ExtendDLQLease(ctx, ids, d)
}

func (q *SQLQueue) Acknowledge(ctx context.Context, ackIDs []string) error {
	ids, err := parseIDs(ackIDs)
	if err != nil {
		return err
	}
	return q.leaser.AckDLQ(ctx, ids)
}

// Check counts the topic's dead letters when the backend can.
func (q *SQLQueue) Check(context.Context) error {
	if m, ok := q.leaser.(transport.DLQManager); ok {
		_, err := m.GetDLQCount(q.topic)
		return err
	}
	return nil
}
