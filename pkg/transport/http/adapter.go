package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/observability"
	"github.com/rhuss/codexec/pkg/storage"
	"github.com/rhuss/codexec/pkg/transport"
)

// Adapter serves the code execution API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	executor transport.Executor
	audit    transport.AuditReader // nil when the audit trail is disabled
	inflight *transport.InFlight
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// MaxConcurrent caps executions across all clients; 0 disables the cap.
	MaxConcurrent int

	// Languages is served by GET /api/code/languages.
	Languages []transport.LanguageInfo

	// Ready backs GET /readyz. Nil means always ready.
	Ready func(ctx context.Context) error

	Logger *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:   1 << 20, // 1 MB
		MaxConcurrent: 32,
	}
}

// NewAdapter creates an HTTP adapter for the given Executor. The
// AuditReader is optional; when nil the execution lookup endpoints report
// that no store is configured. Middleware is applied to the Executor in
// the given order.
func NewAdapter(exec transport.Executor, audit transport.AuditReader, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		exec = transport.Chain(middlewares...)(exec)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		executor: exec,
		audit:    audit,
		inflight: transport.NewInFlight(cfg.MaxConcurrent),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /api/code/execute", a.handleExecute)
	a.mux.HandleFunc("GET /api/code/executions/{id}", a.handleGetExecution)
	a.mux.HandleFunc("GET /api/code/executions", a.handleListExecutions)
	a.mux.HandleFunc("GET /api/code/languages", a.handleLanguages)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("GET /readyz", a.handleReady)

	return a
}

// Handle registers an additional handler, such as /metrics or /mcp, on
// the adapter's mux.
func (a *Adapter) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// InFlight returns the registry of running executions.
func (a *Adapter) InFlight() *transport.InFlight {
	return a.inflight
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// request ID propagation and the access log; inner middleware, the first
// being outermost, runs between those and the routes.
func (a *Adapter) Handler(inner ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = a.mux
	for i := len(inner) - 1; i >= 0; i-- {
		h = inner[i](h)
	}
	return httpRequestIDMiddleware(accessLog(a.config.Logger, h))
}

// httpRequestIDMiddleware makes sure every request carries a request ID.
// A client supplied X-Request-ID is kept, otherwise one is generated. The
// ID is echoed in the response headers.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = transport.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// accessLog logs every request once it has been served.
func accessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		switch {
		case sw.status >= 500:
			level = slog.LevelError
		case r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics":
			level = slog.LevelDebug
		}
		logger.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", transport.RequestIDFromContext(r.Context())),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// handleExecute handles POST /api/code/execute.
func (a *Adapter) handleExecute(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var sub api.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slot := transport.NewRequestID()
	if !a.inflight.TryAcquire(slot, cancel) {
		observability.RateLimitRejectedTotal.WithLabelValues("capacity").Inc()
		transport.WriteAPIError(w, api.NewTooManyRequestsError(
			fmt.Sprintf("server at capacity (%d concurrent executions)", a.config.MaxConcurrent)))
		return
	}
	defer a.inflight.Release(slot)

	result, err := a.executor.Execute(ctx, &sub)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetExecution handles GET /api/code/executions/{id}.
func (a *Adapter) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "execution lookup is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	id := r.PathValue("id")
	if !api.ValidateExecutionID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed execution ID"),
			http.StatusBadRequest,
		)
		return
	}

	rec, err := a.audit.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("execution "+id+" not found"))
			return
		}
		a.config.Logger.Error("audit lookup failed", "execution_id", id, "error", err)
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListExecutions handles GET /api/code/executions.
func (a *Adapter) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "execution listing is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	limit, apiErr := parseLimit(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	recs, err := a.audit.List(r.Context(), limit)
	if err != nil {
		a.config.Logger.Error("audit listing failed", "error", err)
		transport.WriteError(w, err)
		return
	}
	if recs == nil {
		recs = []*storage.Record{}
	}
	writeJSON(w, http.StatusOK, transport.RecordList{Object: "list", Data: recs})
}

func parseLimit(r *http.Request) (int, *api.APIError) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return storage.DefaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, api.NewInvalidRequestError("limit", "limit must be a positive integer")
	}
	return storage.ClampLimit(n), nil
}

// handleLanguages handles GET /api/code/languages.
func (a *Adapter) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	langs := a.config.Languages
	if langs == nil {
		langs = []transport.LanguageInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": langs})
}

func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (a *Adapter) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.config.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.config.Ready(ctx); err != nil {
			a.config.Logger.Warn("readiness check failed", "error", err)
			transport.WriteErrorResponse(w, api.NewServerError("not ready"), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
