// Package auth guards the execution API for service-to-service callers.
//
// Each Authenticator votes on a request. A Chain asks them in order and the
// first one that recognizes the credentials decides; the rest never see
// the request.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision is an authenticator's vote.
type Decision int

const (
	// Yes accepts the request as Result.Identity.
	Yes Decision = iota

	// No rejects credentials the authenticator recognized but could not
	// verify.
	No

	// Abstain passes the request on; the credentials are not this
	// authenticator's kind.
	Abstain
)

// Result is one vote. Identity is set for Yes and Err for No.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity is the calling service as seen by the rate limiter and the
// audit trail.
type Identity struct {
	Subject string

	// Tier picks the rate limit bucket; empty means DefaultTier.
	Tier string

	// Tenant, when set, is recorded on every audit record of the caller.
	Tenant string

	Scopes []string
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// ErrUnauthenticated is the Err of a chain that rejects by default.
var ErrUnauthenticated = errors.New("authentication required")

// Anonymous is the subject of callers admitted by a chain that defaults to Yes.
const Anonymous = "anonymous"

// Chain asks its authenticators in order. When all abstain, Default decides:
// Yes admits the caller as Anonymous, anything else rejects.
type Chain struct {
	Authenticators []Authenticator
	Default        Decision
}

// Authenticate returns the first vote that is not Abstain.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.Default == Yes {
		return Result{Decision: Yes, Identity: &Identity{Subject: Anonymous, Tier: DefaultTier}}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}
