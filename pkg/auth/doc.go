// Package auth guards the sandbox API against unknown callers.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Auth is implemented as HTTP middleware, keeping it decoupled from the
// executor. The middleware also applies the per-caller rate limit and
// injects the tenant into the request context for audit scoping.
package auth
