// Package nats provides the NATS Core ingress transport.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// QueueGroup spreads ingress subjects over every running instance.
const QueueGroup = "pulseflow"

// Capabilities of the NATS Core transport. Delivery is at most once.
var Capabilities = transport.Capabilities{
	Name:           TransportName,
	MaxMessageSize: 1 << 20,
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

// Register adds the NATS transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, Capabilities)
}

// ConnectOptions are the client options both sides connect with: a named,
// indefinitely reconnecting connection.
func ConnectOptions(logger watermill.LoggerAdapter) []nc.Option {
	return []nc.Option{
		nc.Name("pulseflow"),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(2 * time.Second),
		nc.Timeout(5 * time.Second),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				logger.Error("nats disconnected", err, nil)
			}
		}),
		nc.ReconnectHandler(func(c *nc.Conn) {
			logger.Info("nats reconnected", watermill.LogFields{"url": c.ConnectedUrl()})
		}),
	}
}

// Build creates a NATS Core publisher and queue-group subscriber.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		url = nc.DefaultURL
	}
	marshaler := &nats.NATSMarshaler{}
	core := nats.JetStreamConfig{Disabled: true}
	opts := ConnectOptions(logger)

	publisher, err := PublisherFactory(nats.PublisherConfig{
		URL:         url,
		NatsOptions: opts,
		Marshaler:   marshaler,
		JetStream:   core,
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(nats.SubscriberConfig{
		URL:              url,
		NatsOptions:      opts,
		Unmarshaler:      marshaler,
		QueueGroupPrefix: QueueGroup,
		JetStream:        core,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}
