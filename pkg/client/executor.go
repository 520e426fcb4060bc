package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/executor"
	"github.com/rhuss/codexec/pkg/runner"
	"github.com/rhuss/codexec/pkg/transport"
)

// Result is an execution result together with where it came from.
type Result struct {
	*api.ExecutionResult

	// Trusted is false for results produced by the in-process runner,
	// which has no OS isolation.
	Trusted bool `json:"trusted"`
}

// Executor runs submissions locally when it can and remotely otherwise.
// JavaScript and TypeScript first run in-process; a successful local
// result is returned as is. Any other outcome falls back to the server.
type Executor struct {
	remote *Client
	local  transport.Executor
	inproc *runner.InProcess
}

// NewExecutor creates an Executor. Either side may be nil: without a
// remote client local results are final, without a local executor every
// submission goes to the server.
func NewExecutor(remote *Client, local *runner.InProcess) (*Executor, error) {
	e := &Executor{remote: remote, inproc: local}
	if local != nil {
		exec, err := executor.New(local, executor.Config{})
		if err != nil {
			return nil, err
		}
		e.local = exec
	}
	if remote == nil && local == nil {
		return nil, errors.New("client: a remote client or a local runner is required")
	}
	return e, nil
}

// Execute runs sub and reports whether the result is trusted.
func (e *Executor) Execute(ctx context.Context, sub *api.Submission) (*Result, error) {
	if e.local != nil && e.inproc.Supports(sub.Language) {
		res, err := e.local.Execute(ctx, sub)
		switch {
		case e.remote == nil:
			if err != nil {
				return nil, err
			}
			return &Result{ExecutionResult: res}, nil
		case err == nil && res.Success:
			return &Result{ExecutionResult: res}, nil
		case err != nil:
			var apiErr *api.APIError
			if errors.As(err, &apiErr) && apiErr.Type == api.ErrorTypeInvalidRequest {
				// The server applies the same validation.
				return nil, err
			}
			slog.Debug("in-process execution failed, falling back to server", "language", sub.Language, "error", err)
		default:
			slog.Debug("in-process execution unsuccessful, falling back to server",
				"language", sub.Language, "error_kind", res.ErrorKind)
		}
	}

	if e.remote == nil {
		return nil, api.NewInvalidRequestError("language", "language "+string(sub.Language)+" requires a server")
	}
	res, err := e.remote.Execute(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &Result{ExecutionResult: res, Trusted: true}, nil
}
