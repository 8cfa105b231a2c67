package io

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/transport"
	"github.com/drblury/pulseflow/transport/transporttest"
)

func journal(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "journal.ndjson")
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		require.NotNil(t, msg)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestRegister(t *testing.T) {
	reg := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = reg })
	transport.DefaultRegistry = transport.NewRegistry()

	Register()
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.GetCapabilities(TransportName).RequiresDLQEmulation())
}

func TestBuildDefaultsFilePath(t *testing.T) {
	orig := PublisherFactory
	t.Cleanup(func() { PublisherFactory = orig })

	var got string
	PublisherFactory = func(filePath string, _ watermill.LoggerAdapter) (message.Publisher, error) {
		got = filePath
		return &transporttest.PubSub{}, nil
	}
	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, DefaultFilePath, got)
}

func TestPublishKeepsJSONPayloadInline(t *testing.T) {
	path := journal(t)
	pub := &Publisher{filePath: path, logger: watermill.NopLogger{}}

	msg := message.NewMessage("m-1", []byte(`{"source":"velib","payload":{}}`))
	msg.Metadata.Set("message_id", "m-1")
	require.NoError(t, pub.Publish("pulse.ingress", msg, message.NewMessage("m-2", []byte("not json"))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"payload":{"source":"velib","payload":{}}`)
	assert.Contains(t, lines[1], `"payload":"not json"`)
}

func TestSubscribeDeliversTopicInOrder(t *testing.T) {
	path := journal(t)
	pub := &Publisher{filePath: path, logger: watermill.NopLogger{}}
	require.NoError(t, pub.Publish("other", message.NewMessage("x", []byte(`{}`))))
	require.NoError(t, pub.Publish("pulse.ingress",
		message.NewMessage("m-1", []byte(`{"n":1}`)),
		message.NewMessage("m-2", []byte("raw text")),
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := &Subscriber{filePath: path, logger: watermill.NopLogger{}}
	ch, err := sub.Subscribe(ctx, "pulse.ingress")
	require.NoError(t, err)

	first := receive(t, ch)
	assert.Equal(t, "m-1", first.UUID)
	assert.JSONEq(t, `{"n":1}`, string(first.Payload))
	first.Ack()

	second := receive(t, ch)
	assert.Equal(t, "raw text", string(second.Payload))
	second.Nack()
}

func TestSubscribeTailsAppendedLines(t *testing.T) {
	path := journal(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &Subscriber{filePath: path, logger: watermill.NopLogger{}}
	ch, err := sub.Subscribe(ctx, "pulse.ingress")
	require.NoError(t, err)

	pub := &Publisher{filePath: path, logger: watermill.NopLogger{}}
	msg := message.NewMessage("late", []byte(`{}`))
	msg.Metadata.Set("source", "idfm")
	require.NoError(t, pub.Publish("pulse.ingress", msg))

	got := receive(t, ch)
	assert.Equal(t, "late", got.UUID)
	assert.Equal(t, "idfm", got.Metadata.Get("source"))
	got.Ack()
}

func TestSubscribeSkipsMalformedLines(t *testing.T) {
	path := journal(t)
	require.NoError(t, os.WriteFile(path, []byte("garbage\n\n"+`{"uuid":"ok","topic":"t","payload":{}}`+"\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := (&Subscriber{filePath: path, logger: watermill.NopLogger{}}).Subscribe(ctx, "t")
	require.NoError(t, err)

	got := receive(t, ch)
	assert.Equal(t, "ok", got.UUID)
	got.Ack()
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := (&Subscriber{filePath: journal(t), logger: watermill.NopLogger{}}).Subscribe(ctx, "t")
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}
