// Package apikey authenticates service callers by static API keys. Keys
// are compared as SHA-256 hashes in constant time; plaintext keys are not
// kept after construction.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/codexec/pkg/auth"
)

// HeaderName is the dedicated API key header. A bearer token that is not
// a JWT is accepted as well.
const HeaderName = "X-API-Key"

type keyEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates API keys against a static key store.
type Authenticator struct {
	keys []keyEntry
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

// New creates an API key authenticator from a list of raw keys and identities.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		a.keys = append(a.keys, keyEntry{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return a
}

// Authenticate returns Yes for a known key, No for an unknown one and
// Abstain when the request carries no key. Bearer tokens shaped like a
// JWT are left to the JWT authenticator.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key, ok := extractKey(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	sum := sha256.Sum256([]byte(key))
	for _, entry := range a.keys {
		if subtle.ConstantTimeCompare(sum[:], entry.hash[:]) == 1 {
			id := entry.identity
			if id.Tier == "" {
				id.Tier = auth.DefaultTier
			}
			return auth.Result{Decision: auth.Yes, Identity: &id}
		}
	}
	return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

func extractKey(r *http.Request) (string, bool) {
	if vals, ok := r.Header[http.CanonicalHeaderKey(HeaderName)]; ok && len(vals) > 0 {
		return strings.TrimSpace(vals[0]), true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.Count(token, ".") == 2 {
		return "", false
	}
	return strings.TrimSpace(token), true
}
