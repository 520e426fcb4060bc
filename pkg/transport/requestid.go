package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rhuss/codexec/pkg/api"
)

// RequestID returns middleware that makes sure every execution carries a
// request ID. An ID already in the context (set by the HTTP adapter from
// X-Request-ID) is kept.
func RequestID() Middleware {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, sub *api.Submission) (*api.ExecutionResult, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Execute(ctx, sub)
		})
	}
}

// NewRequestID generates a random 32 character hex request ID.
func NewRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
