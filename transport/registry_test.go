package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConfig struct {
	pubSubSystem string
}

func (m *mockConfig) GetPubSubSystem() string       { return m.pubSubSystem }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetKafkaClientID() string      { return "" }
func (m *mockConfig) GetKafkaConsumerGroup() string { return "" }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetNATSURL() string            { return "" }
func (m *mockConfig) GetHTTPServerAddress() string  { return "" }
func (m *mockConfig) GetHTTPPublisherURL() string   { return "" }
func (m *mockConfig) GetIOFile() string             { return "" }
func (m *mockConfig) GetSQLiteFile() string         { return "" }
func (m *mockConfig) GetPostgresURL() string        { return "" }
func (m *mockConfig) GetAWSRegion() string          { return "" }
func (m *mockConfig) GetAWSAccountID() string       { return "" }
func (m *mockConfig) GetAWSAccessKeyID() string     { return "" }
func (m *mockConfig) GetAWSSecretAccessKey() string { return "" }
func (m *mockConfig) GetAWSEndpoint() string        { return "" }

type mockPubSub struct{}

func (mockPubSub) Publish(string, ...*message.Message) error { return nil }

func (mockPubSub) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (mockPubSub) Close() error { return nil }

func okBuilder(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
	return Transport{Publisher: mockPubSub{}, Subscriber: mockPubSub{}}, nil
}

func TestRegistryRegisterAndBuild(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Names())

	reg.Register("memory", okBuilder, Capabilities{SupportsAck: true})
	assert.True(t, reg.Has("memory"))
	assert.False(t, reg.Has("other"))

	tr, err := reg.Build(context.Background(), &mockConfig{pubSubSystem: "memory"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)

	caps := reg.GetCapabilities("memory")
	assert.Equal(t, "memory", caps.Name, "name filled from the registration")
	assert.True(t, caps.SupportsAck)
}

func TestRegistryBuildErrors(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("dial failed")
	reg.Register("broken", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, boom
	}, Capabilities{})

	_, err := reg.Build(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrConfigRequired)

	_, err = reg.Build(context.Background(), &mockConfig{pubSubSystem: "zeromq"}, nil)
	assert.ErrorIs(t, err, ErrUnknownTransport)
	assert.Contains(t, err.Error(), "broken")

	_, err = reg.Build(context.Background(), &mockConfig{pubSubSystem: "broken"}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "build broken transport")
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"sqlite", "aws", "kafka"} {
		reg.Register(name, okBuilder, Capabilities{})
	}
	assert.Equal(t, []string{"aws", "kafka", "sqlite"}, reg.Names())
}

func TestRegistryUnknownCapabilities(t *testing.T) {
	caps := NewRegistry().GetCapabilities("unknown")
	assert.Equal(t, Capabilities{Name: "unknown"}, caps)
	assert.True(t, caps.RequiresDLQEmulation())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				reg.Register("memory", okBuilder, Capabilities{})
				reg.Has("memory")
				reg.Names()
				reg.GetCapabilities("memory")
			}
		}()
	}
	wg.Wait()
	assert.True(t, reg.Has("memory"))
}

func TestPackageLevelRegister(t *testing.T) {
	Register("test-pkg-transport", okBuilder, Capabilities{SupportsNativeDLQ: true})
	assert.True(t, DefaultRegistry.Has("test-pkg-transport"))
	assert.False(t, GetCapabilities("test-pkg-transport").RequiresDLQEmulation())

	_, err := Build(context.Background(), &mockConfig{pubSubSystem: "nonexistent"}, nil)
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestCapabilities(t *testing.T) {
	assert.True(t, Capabilities{SupportsAck: true, SupportsNack: true}.SupportsReliableDelivery())
	assert.False(t, Capabilities{SupportsAck: true}.SupportsReliableDelivery())

	assert.True(t, Capabilities{}.Fits(10<<20))
	limited := Capabilities{MaxMessageSize: 256 << 10}
	assert.True(t, limited.Fits(256<<10))
	assert.False(t, limited.Fits(256<<10+1))
}
