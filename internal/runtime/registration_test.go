package runtime

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
)

func noop(*message.Message) error { return nil }

func TestRegisterMessageHandlerValidation(t *testing.T) {
	svc, _ := newTestService(t, nil, nativeDLQ, ServiceDependencies{})

	tests := []struct {
		name string
		reg  MessageHandlerRegistration
		want error
	}{
		{"missing handler", MessageHandlerRegistration{Name: "h", ConsumeQueue: "q"}, errspkg.ErrHandlerRequired},
		{"missing queue", MessageHandlerRegistration{Name: "h", Handler: noop}, errspkg.ErrConsumeQueueRequired},
		{"missing name", MessageHandlerRegistration{ConsumeQueue: "q", Handler: noop}, errspkg.ErrHandlerNameRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, RegisterMessageHandler(svc, tt.reg), tt.want)
		})
	}

	assert.ErrorIs(t, RegisterMessageHandler(nil, MessageHandlerRegistration{}), errspkg.ErrServiceRequired)
	assert.Empty(t, svc.Handlers())
}

func TestRegisterMessageHandlerAddsRouterHandler(t *testing.T) {
	svc, _ := newTestService(t, nil, nativeDLQ, ServiceDependencies{})
	require.NoError(t, RegisterMessageHandler(svc, MessageHandlerRegistration{
		Name:         "station-status",
		ConsumeQueue: "pulseflow.station-status",
		Handler:      noop,
	}))

	assert.Contains(t, svc.router.Handlers(), "station-status")
	handlers := svc.Handlers()
	require.Len(t, handlers, 1)
	assert.Equal(t, "pulseflow.station-status", handlers[0].ConsumeQueue)
	assert.NotNil(t, handlers[0].Stats)
}

func TestWrapHandlerWithStatsCountsFailureClasses(t *testing.T) {
	stats := newHandlerStats()
	results := []error{
		nil,
		&permanentError{class: "shape"},
		&permanentError{class: "shape"},
		errspkg.ErrDecode,
	}
	i := 0
	h := wrapHandlerWithStats(func(*message.Message) error {
		err := results[i]
		i++
		return err
	}, stats, DefaultErrorClassifier)

	for range results {
		_ = h(message.NewMessage("m", nil))
	}

	snap := stats.Snapshot()
	assert.EqualValues(t, 4, snap.Processed)
	assert.EqualValues(t, 3, snap.Failed)
	assert.EqualValues(t, 2, snap.FailureClasses["shape"])
	assert.Equal(t, errspkg.ErrDecode.Error(), snap.LastError)
	assert.NotNil(t, snap.LastErrorAt)
	assert.Equal(t, 4, snap.Latency.SampleSize)
}

func TestCustomErrorClassifier(t *testing.T) {
	svc, _ := newTestService(t, nil, nativeDLQ, ServiceDependencies{
		ErrorClassifier: func(error) string { return "custom" },
	})
	stats := newHandlerStats()
	h := wrapHandlerWithStats(func(*message.Message) error { return errors.New("x") }, stats, svc.getErrorClassifier())
	_ = h(message.NewMessage("m", nil))
	assert.EqualValues(t, 1, stats.Snapshot().FailureClasses["custom"])
}
