package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTier is the tier of callers whose identity names none.
const DefaultTier = "default"

// RateLimiter decides whether a caller, identified by key, may proceed.
type RateLimiter interface {
	Allow(key, tier string) bool
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

func (t TierConfig) limit() (rate.Limit, int) {
	burst := t.Burst
	if burst <= 0 {
		burst = max(1, t.RequestsPerMinute/10)
	}
	return rate.Limit(float64(t.RequestsPerMinute) / 60), burst
}

// TokenBucketLimiter keeps one token bucket per caller key. Buckets that
// have been idle for longer than the idle TTL are dropped.
type TokenBucketLimiter struct {
	tiers    map[string]TierConfig
	fallback TierConfig
	idleTTL  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter creates a limiter with per-tier settings. Tiers
// not listed use fallback; a tier with zero requests per minute is not
// limited.
func NewTokenBucketLimiter(tiers map[string]TierConfig, fallback TierConfig) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		tiers:    tiers,
		fallback: fallback,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
}

// Allow takes one token from the caller's bucket.
func (l *TokenBucketLimiter) Allow(key, tier string) bool {
	if tier == "" {
		tier = DefaultTier
	}
	tc, ok := l.tiers[tier]
	if !ok {
		tc = l.fallback
	}
	if tc.RequestsPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	id := tier + "/" + key
	b, ok := l.buckets[id]
	if !ok {
		limit, burst := tc.limit()
		b = &bucket{limiter: rate.NewLimiter(limit, burst)}
		l.buckets[id] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep must be called with l.mu held.
func (l *TokenBucketLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.buckets, id)
		}
	}
}

// Len returns the number of live buckets.
func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
