// Package noop provides an authenticator that accepts every request as
// the anonymous caller. It is the default when access control is off.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/codexec/pkg/auth"
)

// Authenticator always returns Yes with the anonymous identity.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.Result {
	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject: auth.Anonymous,
			Tier:    auth.DefaultTier,
		},
	}
}
