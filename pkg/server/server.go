package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mcp-sse-server/pkg/config"
	mcperrors "github.com/ajitpratap0/mcp-sse-server/pkg/errors"
	"github.com/ajitpratap0/mcp-sse-server/pkg/logging"
	"github.com/ajitpratap0/mcp-sse-server/pkg/observability"
	"github.com/ajitpratap0/mcp-sse-server/pkg/tools"
	"github.com/ajitpratap0/mcp-sse-server/pkg/transport"
)

// Server is the composition root: it owns the dispatcher, the session
// manager, the HTTP server and the observability providers.
type Server struct {
	config *config.Config
	logger logging.Logger

	dispatcher *Dispatcher
	sessions   *transport.Manager
	handler    *HTTPHandler

	metrics observability.MetricsProvider
	tracer  *observability.TracingProvider

	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithLogger sets the logger; by default one is built from the config
func WithLogger(logger logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics replaces the metrics provider built from the config
func WithMetrics(metrics observability.MetricsProvider) ServerOption {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithTracer replaces the tracing provider built from the config
func WithTracer(tracer *observability.TracingProvider) ServerOption {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// New builds a server for registry's tools backed by provider. A nil cfg
// uses config.Default().
func New(cfg *config.Config, registry *tools.Registry, provider tools.DataProvider, options ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		config:  cfg,
		stopped: make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}

	if s.logger == nil {
		logger, err := cfg.NewLogger(nil)
		if err != nil {
			return nil, err
		}
		s.logger = logger
	}

	if s.metrics == nil {
		if cfg.EnableMetrics {
			metrics, err := observability.NewMetricsProvider(cfg.MetricsConfig())
			if err != nil {
				return nil, fmt.Errorf("failed to create metrics provider: %w", err)
			}
			s.metrics = metrics
		} else {
			s.metrics = observability.NoopMetrics{}
		}
	}

	if s.tracer == nil {
		tracer, err := observability.NewTracingProvider(cfg.TracingConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create tracing provider: %w", err)
		}
		s.tracer = tracer
	}

	instrumentation := observability.NewInstrumentation(s.tracer, s.metrics)

	s.dispatcher = NewDispatcher(registry, provider,
		WithServerInfo(cfg.ServerName, cfg.ServerVersion),
		WithProtocolVersion(cfg.ProtocolVersion),
		WithStrictValidation(cfg.StrictValidation),
		WithDispatcherLogger(s.logger),
		WithInstrumentation(instrumentation),
	)

	s.sessions = transport.NewManager(
		transport.WithConfig(transport.Config{
			ListChangedDelay:  cfg.ListChangedDelay,
			HeartbeatInterval: cfg.HeartbeatInterval,
			AutoCloseAfter:    cfg.AutoCloseAfter,
			DrainDelay:        cfg.DrainDelay,
		}),
		transport.WithLogger(s.logger),
		transport.WithInstrumentation(instrumentation),
	)

	s.handler = NewHTTPHandler(s.dispatcher, s.sessions,
		WithAllowedOrigins(cfg.AllowedOrigins...),
		WithMaxBodyBytes(cfg.MaxBodyBytes),
		WithHandlerLogger(s.logger),
	)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler returns the HTTP routes: the event stream endpoint behind request
// id, access log and trace propagation middleware, plus the metrics endpoint
// when metrics are served on the main listener.
func (s *Server) Handler() http.Handler {
	var endpoint http.Handler = s.handler
	endpoint = observability.HTTPTracingMiddleware(s.tracer)(endpoint)
	endpoint = logging.HTTPMiddleware(s.logger)(endpoint)
	endpoint = logging.RequestIDMiddleware(nil)(endpoint)

	mux := http.NewServeMux()
	mux.Handle(s.config.SSEPath, endpoint)
	if s.config.EnableMetrics && s.config.MetricsAddr == "" {
		mux.Handle(s.config.MetricsPath, s.metrics.Handler())
	}
	return mux
}

// Dispatcher returns the request dispatcher
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Sessions returns the session manager
func (s *Server) Sessions() *transport.Manager { return s.sessions }

// Addr returns the listening address once Start has bound it
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start listens on the configured address and serves until ctx is canceled
// or Shutdown is called. Either way the server shuts down gracefully before
// Start returns.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return mcperrors.ListenFailed(s.config.Addr, err).WithContext(&mcperrors.Context{
			Component: "server",
			Operation: "start",
			Timestamp: time.Now(),
		})
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if err := s.metrics.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	s.logger.Info("Server listening",
		logging.String("addr", ln.Addr().String()),
		logging.String("sse_path", s.config.SSEPath),
		logging.String("server_name", s.config.ServerName),
		logging.String("server_version", s.config.ServerVersion),
		logging.Bool("strict_validation", s.config.StrictValidation),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.stopped:
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown closes every session with reason server_shutdown, stops the
// HTTP server and flushes the observability providers. It is safe to call
// more than once; later calls return the first result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.logger.Info("Server shutting down", logging.Int("open_sessions", s.sessions.Count()))

		// Stream handlers never return on their own, so sessions go first.
		var errs []error
		if err := s.sessions.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sessions: %w", err))
		}
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		if err := s.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
		if err := s.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}

		s.stopErr = errors.Join(errs...)
		close(s.stopped)
	})
	return s.stopErr
}

// Broadcast pushes a notification to every open stream session and returns
// how many sessions accepted it
func (s *Server) Broadcast(method string, params interface{}) (int, error) {
	frame, err := transport.NotificationFrame(method, params)
	if err != nil {
		return 0, err
	}
	n := s.sessions.Broadcast(frame)
	s.logger.Debug("Broadcast notification",
		logging.String("rpc_method", method),
		logging.Int("sessions", n))
	return n, nil
}
