package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/transport"
	"github.com/drblury/pulseflow/transport/transporttest"
)

func stubFactories(t *testing.T, pub func(kafka.PublisherConfig) (message.Publisher, error), sub func(kafka.SubscriberConfig) (message.Subscriber, error)) {
	t.Helper()
	origPub, origSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() { PublisherFactory, SubscriberFactory = origPub, origSub })
	PublisherFactory = func(cfg kafka.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) { return pub(cfg) }
	SubscriberFactory = func(cfg kafka.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		return sub(cfg)
	}
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.GetCapabilities(TransportName).RequiresDLQEmulation())
}

func TestBuildWiresBrokersGroupAndClientID(t *testing.T) {
	fake := &transporttest.PubSub{}
	stubFactories(t,
		func(cfg kafka.PublisherConfig) (message.Publisher, error) {
			assert.Equal(t, []string{"broker:9092"}, cfg.Brokers)
			assert.Equal(t, DefaultClientID, cfg.OverwriteSaramaConfig.ClientID)
			return fake, nil
		},
		func(cfg kafka.SubscriberConfig) (message.Subscriber, error) {
			assert.Equal(t, "pulse-readers", cfg.ConsumerGroup)
			assert.Equal(t, DefaultClientID, cfg.OverwriteSaramaConfig.ClientID)
			return fake, nil
		},
	)

	tr, err := Build(context.Background(), &transporttest.Config{
		KafkaBrokers:       []string{"broker:9092"},
		KafkaConsumerGroup: "pulse-readers",
	}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, fake, tr.Publisher)
	assert.Same(t, fake, tr.Subscriber)
}

func TestBuildClosesPublisherWhenSubscriberFails(t *testing.T) {
	fake := &transporttest.PubSub{}
	boom := errors.New("no brokers")
	stubFactories(t,
		func(kafka.PublisherConfig) (message.Publisher, error) { return fake, nil },
		func(kafka.SubscriberConfig) (message.Subscriber, error) { return nil, boom },
	)

	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorIs(t, err, boom)
	assert.True(t, fake.Closed)
}

func TestBuildPublisherError(t *testing.T) {
	boom := errors.New("no brokers")
	stubFactories(t,
		func(kafka.PublisherConfig) (message.Publisher, error) { return nil, boom },
		func(kafka.SubscriberConfig) (message.Subscriber, error) {
			t.Fatal("subscriber must not be built")
			return nil, nil
		},
	)
	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorIs(t, err, boom)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("1", nil)
	key, err := PartitionKey("pulse.ingress", msg)
	require.NoError(t, err)
	assert.Equal(t, "pulse.ingress", key)

	msg.Metadata.Set("source", "velib")
	key, err = PartitionKey("pulse.ingress", msg)
	require.NoError(t, err)
	assert.Equal(t, "velib", key)
}
