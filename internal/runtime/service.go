package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/pulseflow/internal/runtime/config"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
	"github.com/drblury/pulseflow/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

const shutdownTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators of a Service. Leave
// fields nil to get the defaults.
type ServiceDependencies struct {
	// Registry builds the transport named by the config. Defaults to
	// transport.DefaultRegistry.
	Registry *transport.Registry
	// Middlewares are appended after the default chain.
	Middlewares               []MiddlewareRegistration
	DisableDefaultMiddlewares bool
	ErrorClassifier           ErrorClassifier
	// Stages backs /api/stages.
	Stages *metrics.Stages
	// DisableSignals leaves SIGINT/SIGTERM handling to the caller.
	DisableSignals bool
}

// Service wires a Watermill router, the configured transport and the
// middleware chain.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher    message.Publisher
	subscriber   message.Subscriber
	capabilities transport.Capabilities
	router       *message.Router
	stages       *metrics.Stages

	handlers   []*HandlerInfo
	handlersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	errorClassifier ErrorClassifier
}

// NewService builds the transport and router for conf. Register handlers on
// the returned Service before calling Start.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating event service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	registry := deps.Registry
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	tr, err := registry.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, err
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: shutdownTimeout}, wmLogger)
	if err != nil {
		closeTransport(tr)
		return nil, fmt.Errorf("create router: %w", err)
	}
	if !deps.DisableSignals {
		router.AddPlugin(plugin.SignalsHandler)
	}

	s := &Service{
		Conf:            conf,
		Logger:          log,
		publisher:       tr.Publisher,
		subscriber:      tr.Subscriber,
		capabilities:    registry.GetCapabilities(conf.PubSubSystem),
		router:          router,
		stages:          deps.Stages,
		errorClassifier: deps.ErrorClassifier,
	}
	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		closeTransport(tr)
		return nil, err
	}
	return s, nil
}

// Publisher is the transport publisher, used to redrive into the ingress topic.
func (s *Service) Publisher() message.Publisher { return s.publisher }

// Subscriber is the transport subscriber.
func (s *Service) Subscriber() message.Subscriber { return s.subscriber }

// Capabilities of the configured transport.
func (s *Service) Capabilities() transport.Capabilities { return s.capabilities }

// Start runs the HTTP servers and the router until ctx is canceled or the
// router stops.
func (s *Service) Start(ctx context.Context) error {
	s.StartWebUIServer()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	s.startHTTPServers(ctx, g)
	g.Go(func() error {
		// a router stopped by a signal takes the HTTP servers down with it
		defer cancel()
		return routerRun(s.router, ctx)
	})
	return g.Wait()
}

// Close releases the transport. Safe to call after Start returned.
func (s *Service) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.subscriber != nil && any(s.subscriber) != any(s.publisher) {
		errs = append(errs, s.subscriber.Close())
	}
	return errors.Join(errs...)
}

func closeTransport(tr transport.Transport) {
	if tr.Publisher != nil {
		_ = tr.Publisher.Close()
	}
	if tr.Subscriber != nil && any(tr.Subscriber) != any(tr.Publisher) {
		_ = tr.Subscriber.Close()
	}
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var registrations []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		registrations = append(registrations, DefaultMiddlewares()...)
	}
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) getErrorClassifier() ErrorClassifier {
	if s.errorClassifier == nil {
		return DefaultErrorClassifier
	}
	return s.errorClassifier
}

// RegisterHTTPHandler mounts handler on the server for port. Servers start
// with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers(ctx context.Context, g *errgroup.Group) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
}
