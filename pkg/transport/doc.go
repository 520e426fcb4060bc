// Package transport defines the contract between the HTTP surface and the
// execution core, plus the middleware that wraps it.
//
// # Handler Interfaces
//
//   - Executor runs one submission and returns its ExecutionResult.
//   - AuditReader serves the execution summaries recorded by the executor.
//
// # Middleware
//
// The middleware chain wraps an Executor with cross-cutting concerns: panic
// recovery, request ID assignment (X-Request-ID) and structured logging via
// log/slog. HTTP-level concerns such as authentication and metrics live in
// their own packages and wrap the http.Handler instead.
//
// Admission control is the job of InFlight, which caps concurrent
// executions and can cancel them on shutdown.
package transport
