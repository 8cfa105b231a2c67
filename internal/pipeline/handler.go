package pipeline

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pulseflow/internal/runtime/metadata"
)

// FailedError is returned to the router when a message did not complete.
type FailedError struct {
	Class string
	Err   error
	// Recorded failures already have a durable dead-letter record; retrying
	// them in place would only duplicate it.
	Recorded bool
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("pipeline %s failure: %v", e.Class, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Permanent marks failures the retry middleware must not retry.
func (e *FailedError) Permanent() bool { return e.Recorded }

// FailureClass is read by the runtime handler stats.
func (e *FailedError) FailureClass() string { return e.Class }

// Handler adapts the pipeline to a router handler consuming the ingress topic.
func (p *Pipeline) Handler() message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		out := p.Process(msg.Context(), FromMessage(msg))
		if out.Err == nil {
			return nil
		}
		failed := &FailedError{Class: out.Failure(), Err: out.Err, Recorded: out.Recorded}
		msg.Metadata.Set(metadata.KeyFailureClass, failed.Class)
		if failed.Permanent() {
			msg.Metadata.Set(metadata.KeyFailurePermanent, "true")
		}
		return failed
	}
}

// FromMessage builds an Input from a router message. A message_id attribute
// wins over the transport UUID so redriven copies keep their insert ids.
func FromMessage(msg *message.Message) Input {
	attrs := metadata.FromWatermill(msg.Metadata)
	id := attrs[metadata.KeyMessageID]
	if id == "" {
		id = msg.UUID
	}
	return Input{
		MessageID:  id,
		Data:       []byte(msg.Payload),
		Attributes: attrs,
	}
}
