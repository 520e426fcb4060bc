package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/codexec/pkg/api"
)

// Logging returns middleware that logs every execution with its request
// ID, language, outcome and duration. HTTP status codes are logged by the
// adapter's access log.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, sub *api.Submission) (*api.ExecutionResult, error) {
			start := time.Now()
			result, err := next.Execute(ctx, sub)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("language", string(sub.Language)),
				slog.Int("test_cases", len(sub.TestCases)),
				slog.Duration("duration", time.Since(start)),
			}

			switch {
			case err != nil:
				attrs = append(attrs, slog.String("error", err.Error()))
				level := slog.LevelError
				if apiErr, ok := err.(*api.APIError); ok && apiErr.Type != api.ErrorTypeServerError {
					level = slog.LevelInfo
				}
				logger.LogAttrs(ctx, level, "execution rejected", attrs...)
			default:
				attrs = append(attrs,
					slog.String("execution_id", result.ID),
					slog.Bool("success", result.Success),
				)
				if result.ErrorKind != "" {
					attrs = append(attrs, slog.String("error_kind", string(result.ErrorKind)))
				}
				logger.LogAttrs(ctx, slog.LevelInfo, "execution completed", attrs...)
			}
			return result, err
		})
	}
}
