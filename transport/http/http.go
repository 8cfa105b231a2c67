// Package http provides a webhook-style transport: messages are POSTed to
// <publisher url>/<topic> and received on <server address>/<topic>.
package http

import (
	"context"
	nethttp "net/http"
	"net/url"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// Capabilities of the http transport. A non-2xx reply is the only nack.
var Capabilities = transport.Capabilities{
	Name: TransportName,
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	transport.Register(TransportName, Build, Capabilities)
}

// TopicRequest builds the POST for msg on topic below base.
func TopicRequest(base string) http.MarshalMessageFunc {
	return func(topic string, msg *message.Message) (*nethttp.Request, error) {
		target, err := url.JoinPath(base, topic)
		if err != nil {
			return nil, err
		}
		return http.DefaultMarshalMessageFunc(target, msg)
	}
}

// Build creates the publisher and starts the subscriber's server in the
// background.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	publisher, err := PublisherFactory(http.PublisherConfig{
		MarshalMessageFunc: TopicRequest(cfg.GetHTTPPublisherURL()),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	addr := cfg.GetHTTPServerAddress()
	subscriber, err := SubscriberFactory(addr, http.SubscriberConfig{
		UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	if s, ok := subscriber.(*http.Subscriber); ok {
		go func() {
			if err := s.StartHTTPServer(); err != nil && err != nethttp.ErrServerClosed {
				logger.Error("http subscriber server stopped", err, watermill.LogFields{"addr": addr})
			}
		}()
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}
