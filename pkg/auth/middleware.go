package auth

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/debug"
	"github.com/rhuss/codexec/pkg/observability"
	"github.com/rhuss/codexec/pkg/storage"
	"github.com/rhuss/codexec/pkg/transport"
)

// Middleware creates HTTP middleware from a Chain and optional RateLimiter.
// It checks the bypass list, runs authentication, enforces the rate limit
// and injects identity and tenant into the request context.
//
// Authenticated callers are limited by subject. Anonymous callers are
// limited by remote IP.
func Middleware(chain *Chain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required"))
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteAPIError(w, api.NewServerError("Internal server error"))
				return
			}

			debug.Log("auth", "authentication succeeded",
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
			)

			if limiter != nil {
				key := result.Identity.Subject
				if key == Anonymous {
					key = "ip:" + clientIP(r)
				}
				if !limiter.Allow(key, result.Identity.Tier) {
					slog.Warn("rate limit exceeded",
						"key", key,
						"tier", result.Identity.Tier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues("rate_limit").Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			ctx := WithIdentity(r.Context(), result.Identity)
			if tenant := result.Identity.Tenant; tenant != "" {
				ctx = storage.SetTenant(ctx, tenant)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}
