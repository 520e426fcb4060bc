// Package jwt authenticates service callers by signed JWT bearer tokens.
//
// Tokens are verified against a shared HMAC secret or an RSA public key
// loaded from PEM. Issuer and audience are checked when configured, and
// the subject, tenant and rate limit tier are read from claims.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rhuss/codexec/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Secret verifies HS256/HS384/HS512 tokens.
	Secret []byte

	// PublicKeyPEM verifies RS256/RS384/RS512 tokens. Exactly one of
	// Secret and PublicKeyPEM must be set.
	PublicKeyPEM []byte

	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// SubjectClaim names the identity subject claim. Default: "sub".
	SubjectClaim string

	// TenantClaim names the tenant claim. Default: "tenant_id".
	TenantClaim string

	// TierClaim names the rate limit tier claim. Default: "tier".
	TierClaim string

	// Leeway tolerates clock skew on exp/nbf/iat. Default: 30s.
	Leeway time.Duration
}

func (c *Config) applyDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.Leeway == 0 {
		c.Leeway = 30 * time.Second
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	key    any
	parser *jwtlib.Parser
}

// New creates a JWT authenticator.
func New(cfg Config) (*Authenticator, error) {
	cfg.applyDefaults()

	a := &Authenticator{config: cfg}
	var methods []string
	switch {
	case len(cfg.Secret) > 0 && len(cfg.PublicKeyPEM) > 0:
		return nil, errors.New("jwt: configure either a secret or a public key, not both")
	case len(cfg.Secret) > 0:
		a.key = cfg.Secret
		methods = []string{"HS256", "HS384", "HS512"}
	case len(cfg.PublicKeyPEM) > 0:
		pub, err := jwtlib.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("jwt: parsing public key: %w", err)
		}
		a.key = pub
		methods = []string{"RS256", "RS384", "RS512"}
	default:
		return nil, errors.New("jwt: a secret or a public key is required")
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(methods),
		jwtlib.WithLeeway(cfg.Leeway),
		jwtlib.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}
	a.parser = jwtlib.NewParser(opts...)
	return a, nil
}

// Authenticate extracts a bearer token from the Authorization header,
// validates it, and returns an identity on success.
//
// Decision outcomes:
//   - Abstain: no bearer token, or one that is not shaped like a JWT
//   - No: a JWT that fails verification or lacks a subject
//   - Yes: valid JWT with populated Identity
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.Count(tokenStr, ".") != 2 {
		return auth.Result{Decision: auth.Abstain}
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(tokenStr, claims, func(*jwtlib.Token) (any, error) {
		return a.key, nil
	})
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject := claimString(claims, a.config.SubjectClaim)
	if subject == "" {
		return auth.Result{
			Decision: auth.No,
			Err:      fmt.Errorf("JWT missing %q claim", a.config.SubjectClaim),
		}
	}

	identity := &auth.Identity{
		Subject: subject,
		Tier:    claimString(claims, a.config.TierClaim),
		Scopes:  strings.Fields(claimString(claims, "scope")),
	}
	if identity.Tier == "" {
		identity.Tier = auth.DefaultTier
	}
	if tenant := claimString(claims, a.config.TenantClaim); tenant != "" {
		identity.Tenant = tenant
	}

	return auth.Result{Decision: auth.Yes, Identity: identity}
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
