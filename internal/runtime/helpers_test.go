package runtime

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/pulseflow/internal/runtime/config"
	loggingpkg "github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/transport"
)

type testPublisher struct {
	mu        sync.Mutex
	published map[string][]*message.Message
	err       error
	closed    int
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.published == nil {
		p.published = make(map[string][]*message.Message)
	}
	p.published[topic] = append(p.published[topic], messages...)
	return nil
}

func (p *testPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *testPublisher) Messages(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.published[topic]...)
}

type testSubscriber struct {
	err    error
	closed int
}

func (s *testSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error {
	s.closed++
	return nil
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// testRegistry registers a "test" transport backed by pub and sub.
func testRegistry(pub *testPublisher, sub *testSubscriber, caps transport.Capabilities) *transport.Registry {
	reg := transport.NewRegistry()
	reg.Register("test", func(context.Context, transport.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{Publisher: pub, Subscriber: sub}, nil
	}, caps)
	return reg
}

func newTestService(t *testing.T, conf *configpkg.Config, caps transport.Capabilities, deps ServiceDependencies) (*Service, *testPublisher) {
	t.Helper()
	pub := &testPublisher{}
	if conf == nil {
		conf = &configpkg.Config{}
	}
	conf.PubSubSystem = "test"
	if conf.PoisonQueue == "" {
		conf.PoisonQueue = configpkg.DefaultHoldingTopic
	}
	deps.Registry = testRegistry(pub, &testSubscriber{}, caps)
	deps.DisableSignals = true
	svc, err := NewService(context.Background(), conf, newTestLogger(), deps)
	require.NoError(t, err)
	return svc, pub
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
