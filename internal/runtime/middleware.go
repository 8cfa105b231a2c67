package runtime

import (
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	idspkg "github.com/drblury/pulseflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/pulseflow/internal/runtime/logging"
)

const (
	metadataKeyCorrelationID = "correlation_id"
	tracerName               = "github.com/drblury/pulseflow"
)

// MiddlewareBuilder constructs a handler middleware using the provided service instance.
type MiddlewareBuilder func(*Service) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a Service router.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig customises the retry middleware behaviour.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RetryIf defaults to retrying everything that is not permanent.
	RetryIf func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = func(err error) bool { return !errspkg.IsPermanent(err) }
	}
	return cfg
}

// DefaultMiddlewares returns the chain registered by NewService, outermost
// first. The poison queue sits outside retry so it only sees errors retry
// gave up on.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		PoisonQueueMiddleware(nil),
		RetryMiddleware(RetryMiddlewareConfig{}),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware adds the Watermill Prometheus router metrics and serves
// /metrics on the metrics port.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}
			builder := metrics.NewPrometheusMetricsBuilder(prometheus.DefaultRegisterer, "pulseflow", s.Conf.PubSubSystem)
			builder.AddPrometheusRouterMetrics(s.router)
			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.Handler())
			}
			return builder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// CorrelationIDMiddleware ensures each processed message carries a correlation identifier.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			return func(msg *message.Message) ([]*message.Message, error) {
				if msg.Metadata.Get(metadataKeyCorrelationID) == "" {
					msg.Metadata.Set(metadataKeyCorrelationID, idspkg.CreateULID())
				}
				return h(msg)
			}
		},
	}
}

// LogMessagesMiddleware logs handled messages at debug level.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return logMessages(l), nil
		},
	}
}

func logMessages(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			fields := loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"handler":      message.HandlerNameFromCtx(msg.Context()),
				"metadata":     msg.Metadata,
				"bytes":        len(msg.Payload),
			}
			logger.Debug("Processing message", fields)
			msgs, err := h(msg)
			if err != nil {
				logger.Error("Message handling failed", err, fields)
			}
			return msgs, err
		}
	}
}

// TracerMiddleware wraps handler execution in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Middleware: func(h message.HandlerFunc) message.HandlerFunc {
			return func(msg *message.Message) ([]*message.Message, error) {
				ctx, span := otel.Tracer(tracerName).Start(msg.Context(), "ProcessMessage")
				defer span.End()
				msg.SetContext(ctx)

				span.SetAttributes(
					attribute.String("messaging.message.id", msg.UUID),
					attribute.String("messaging.handler", message.HandlerNameFromCtx(ctx)),
					attribute.String(metadataKeyCorrelationID, msg.Metadata.Get(metadataKeyCorrelationID)),
				)
				msgs, err := h(msg)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, errspkg.TypeName(err))
				}
				return msgs, err
			}
		},
	}
}

// RetryMiddleware retries handler execution using the provided configuration.
// Zero fields are taken from the service config, then from the defaults.
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			c := cfg
			if c.MaxRetries == 0 {
				c.MaxRetries = s.Conf.RetryMaxRetries
			}
			if c.InitialInterval == 0 {
				c.InitialInterval = s.Conf.RetryInitialInterval
			}
			if c.MaxInterval == 0 {
				c.MaxInterval = s.Conf.RetryMaxInterval
			}
			return retry(c.withDefaults(), s.Logger), nil
		},
	}
}

func retry(cfg RetryMiddlewareConfig, logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	r := middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      2,
		ShouldRetry: func(params middleware.RetryParams) bool {
			return cfg.RetryIf(params.Err)
		},
	}
	if logger != nil {
		r.Logger = loggingpkg.NewWatermillAdapter(logger)
	}
	return r.Middleware
}

// PoisonQueueMiddleware publishes failed messages to the holding topic when
// the transport has no dead-letter area of its own. A nil filter poisons
// every error.
func PoisonQueueMiddleware(filter func(error) bool) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "poison_queue",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.capabilities.RequiresDLQEmulation() {
				return nil, nil
			}
			if s.publisher == nil {
				return nil, errspkg.ErrPublisherRequired
			}
			if s.Conf.PoisonQueue == "" {
				return nil, errspkg.ErrTopicRequired
			}
			f := filter
			if f == nil {
				f = func(error) bool { return true }
			}
			return middleware.PoisonQueueWithFilter(s.publisher, s.Conf.PoisonQueue, f)
		},
	}
}

// RecovererMiddleware converts panics into handler errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}
	s.router.AddMiddleware(mw)
	return nil
}
