package redrive

import (
	"context"
	"time"
)

// Delivery is one message leased from a holding queue.
type Delivery struct {
	// AckID identifies this lease; it is what ExtendLease and Acknowledge take.
	AckID      string
	MessageID  string
	Data       []byte
	Attributes map[string]string
}

// HoldingQueue is the source of dead-lettered messages.
type HoldingQueue interface {
	// Name identifies the queue; its last path segment is stamped as replay_source.
	Name() string
	// Pull leases at most max messages. An empty result means the queue is drained.
	Pull(ctx context.Context, max int) ([]Delivery, error)
	ExtendLease(ctx context.Context, ackIDs []string, d time.Duration) error
	Acknowledge(ctx context.Context, ackIDs []string) error
}

// Checker is implemented by queues and publishers that can probe reachability.
type Checker interface {
	Check(ctx context.Context) error
}
