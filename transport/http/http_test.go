package http

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/transport"
	"github.com/drblury/pulseflow/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.GetCapabilities(TransportName).RequiresDLQEmulation())
}

func TestTopicRequestJoinsPath(t *testing.T) {
	msg := message.NewMessage("m-1", []byte(`{"source":"velib"}`))
	req, err := TopicRequest("http://collector:8080/ingest/")(`pulse.ingress`, msg)
	require.NoError(t, err)
	assert.Equal(t, "http://collector:8080/ingest/pulse.ingress", req.URL.String())
	assert.Equal(t, "POST", req.Method)
}

func TestBuild(t *testing.T) {
	origPub, origSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() { PublisherFactory, SubscriberFactory = origPub, origSub })

	fake := &transporttest.PubSub{}
	PublisherFactory = func(cfg watermillhttp.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		assert.NotNil(t, cfg.MarshalMessageFunc)
		return fake, nil
	}
	SubscriberFactory = func(addr string, _ watermillhttp.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.Equal(t, ":8090", addr)
		return fake, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{
		HTTPServerAddress: ":8090",
		HTTPPublisherURL:  "http://localhost:8090/",
	}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, fake, tr.Publisher)
}

func TestBuildSubscriberError(t *testing.T) {
	origPub, origSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() { PublisherFactory, SubscriberFactory = origPub, origSub })

	fake := &transporttest.PubSub{}
	boom := errors.New("address in use")
	PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return fake, nil
	}
	SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return nil, boom
	}

	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorIs(t, err, boom)
	assert.True(t, fake.Closed)
}
