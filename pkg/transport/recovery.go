package transport

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/codexec/pkg/api"
)

// Recovery returns middleware that turns a panic in the executor into a
// server error. The server keeps accepting requests afterwards.
func Recovery() Middleware {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, sub *api.Submission) (result *api.ExecutionResult, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic during execution",
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					result = nil
					retErr = api.NewServerError("Internal server error")
				}
			}()
			return next.Execute(ctx, sub)
		})
	}
}
