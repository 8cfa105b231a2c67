package runtime

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
)

// MessageHandlerRegistration wires a consuming handler onto the router.
type MessageHandlerRegistration struct {
	Name         string
	ConsumeQueue string
	Handler      message.NoPublishHandlerFunc
	// Subscriber defaults to the service transport.
	Subscriber message.Subscriber
}

// RegisterMessageHandler attaches the handler to the service router with
// per-handler stats.
func RegisterMessageHandler(svc *Service, cfg MessageHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerHandler(cfg)
}

func (s *Service) registerHandler(cfg MessageHandlerRegistration) error {
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if cfg.ConsumeQueue == "" {
		return errspkg.ErrConsumeQueueRequired
	}
	if cfg.Name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.subscriber
	}

	info := &HandlerInfo{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		Stats:        newHandlerStats(),
	}
	s.handlersMu.Lock()
	s.handlers = append(s.handlers, info)
	s.handlersMu.Unlock()

	s.router.AddNoPublisherHandler(
		cfg.Name,
		cfg.ConsumeQueue,
		cfg.Subscriber,
		wrapHandlerWithStats(cfg.Handler, info.Stats, s.getErrorClassifier()),
	)
	return nil
}

// Handlers returns the registered handlers in registration order.
func (s *Service) Handlers() []*HandlerInfo {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return append([]*HandlerInfo(nil), s.handlers...)
}

func wrapHandlerWithStats(handler message.NoPublishHandlerFunc, stats *HandlerStats, classify ErrorClassifier) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		start := time.Now()
		err := handler(msg)
		stats.record(time.Now(), time.Since(start), err, classify)
		return err
	}
}
