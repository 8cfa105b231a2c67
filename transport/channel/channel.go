// Package channel provides the in-memory gochannel transport used for local
// runs and tests.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputBuffer lets a snapshot burst queue up while the pipeline works.
const OutputBuffer = 64

// Capabilities of the channel transport. There is no DLQ, failed messages go
// to the holding topic.
var Capabilities = transport.Capabilities{
	Name:             TransportName,
	SupportsOrdering: true,
	SupportsAck:      true,
	SupportsNack:     true,
}

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.Register(TransportName, Build, Capabilities)
}

// Build creates a gochannel pub/sub. It is persistent so messages published
// before the router subscribes, such as a redrive into a fresh process, are
// not lost.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{
		OutputChannelBuffer: OutputBuffer,
		Persistent:          true,
	}, logger)
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}
