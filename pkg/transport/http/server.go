package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/codexec/pkg/observability"
	"github.com/rhuss/codexec/pkg/transport"
)

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	MaxConcurrent   int
	ShutdownTimeout time.Duration
	Logger          *slog.Logger

	Languages []transport.LanguageInfo
	Ready     func(ctx context.Context) error

	// Middleware wraps the routes inside the metrics middleware, e.g. for
	// authentication. The first entry is outermost.
	Middleware []func(http.Handler) http.Handler

	// Handlers are extra routes mounted next to the API, keyed by pattern.
	Handlers map[string]http.Handler
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     DefaultConfig().MaxBodySize,
		MaxConcurrent:   DefaultConfig().MaxConcurrent,
		ShutdownTimeout: 10 * time.Second,
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithMaxConcurrent caps the number of executions running at once.
func WithMaxConcurrent(n int) ServerOption {
	return func(s *Server) { s.config.MaxConcurrent = n }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithLanguages sets the language registry served by the API.
func WithLanguages(langs []transport.LanguageInfo) ServerOption {
	return func(s *Server) { s.config.Languages = langs }
}

// WithReadiness sets the check behind GET /readyz.
func WithReadiness(fn func(ctx context.Context) error) ServerOption {
	return func(s *Server) { s.config.Ready = fn }
}

// WithMiddleware appends HTTP middleware around the routes.
func WithMiddleware(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.config.Middleware = append(s.config.Middleware, mw...) }
}

// WithHandler mounts an additional handler, such as /metrics or /mcp.
func WithHandler(pattern string, h http.Handler) ServerOption {
	return func(s *Server) {
		if s.config.Handlers == nil {
			s.config.Handlers = make(map[string]http.Handler)
		}
		s.config.Handlers[pattern] = h
	}
}

// NewServer creates a new transport server for the given Executor.
// The AuditReader is optional (pass nil when no store is configured).
// Default middleware (recovery, request ID, logging) is applied to the
// executor, and the metrics middleware to every HTTP request.
func NewServer(exec transport.Executor, audit transport.AuditReader, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	adapterCfg := Config{
		MaxBodySize:   s.config.MaxBodySize,
		MaxConcurrent: s.config.MaxConcurrent,
		Languages:     s.config.Languages,
		Ready:         s.config.Ready,
		Logger:        s.logger,
	}

	defaultMW := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	}

	s.adapter = NewAdapter(exec, audit, adapterCfg, defaultMW...)
	for pattern, h := range s.config.Handlers {
		s.adapter.Handle(pattern, h)
	}

	inner := append([]func(http.Handler) http.Handler{observability.MetricsMiddleware}, s.config.Middleware...)
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.adapter.Handler(inner...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight executions to complete within the configured
// timeout and cancelling the rest.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.listenAndServeWithContext(ctx)
}

func (s *Server) listenAndServeWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

// ServeOn starts the server on the given listener and blocks until ctx is
// done. Used for testing and by callers that manage their own listener.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context. When
// ctx expires first, executions still running are cancelled so their
// sandboxes are killed.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if n := s.adapter.InFlight().CancelAll(); n > 0 {
		s.logger.Warn("cancelled executions at shutdown", slog.Int("count", n))
	}
	return err
}
