// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles work per key (a client address or a target host).
type RateLimiter interface {
	// Wait blocks until key may proceed or ctx is done.
	Wait(ctx context.Context, key string) error

	// Allow reports whether key may proceed now, consuming a token if so.
	Allow(key string) bool
}

type keyed struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyLimiter keeps one token bucket per key. Buckets idle for longer than
// the idle horizon are dropped on the next Prune.
type KeyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyed
	perKey   rate.Limit
	burst    int
	now      func() time.Time
}

// NewKeyLimiter creates a limiter allowing requestsPerSecond per key with
// the given burst. A non-positive rate disables limiting.
func NewKeyLimiter(requestsPerSecond float64, burst int) *KeyLimiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	return &KeyLimiter{
		limiters: make(map[string]*keyed),
		perKey:   limit,
		burst:    burst,
		now:      time.Now,
	}
}

// Wait blocks until key may proceed.
func (kl *KeyLimiter) Wait(ctx context.Context, key string) error {
	if key == "" || kl.perKey == rate.Inf {
		return nil
	}
	return kl.get(key).Wait(ctx)
}

// Allow reports whether key may proceed immediately.
func (kl *KeyLimiter) Allow(key string) bool {
	if key == "" || kl.perKey == rate.Inf {
		return true
	}
	return kl.get(key).AllowN(kl.now(), 1)
}

// RetryAfter returns how long key must wait for its next token.
func (kl *KeyLimiter) RetryAfter(key string) time.Duration {
	if key == "" || kl.perKey == rate.Inf {
		return 0
	}
	r := kl.get(key).ReserveN(kl.now(), 1)
	defer r.CancelAt(kl.now())
	return r.DelayFrom(kl.now())
}

func (kl *KeyLimiter) get(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	k, ok := kl.limiters[key]
	if !ok {
		k = &keyed{limiter: rate.NewLimiter(kl.perKey, kl.burst)}
		kl.limiters[key] = k
	}
	k.lastSeen = kl.now()
	return k.limiter
}

// Prune drops buckets not used within idle and returns how many remain.
func (kl *KeyLimiter) Prune(idle time.Duration) int {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	cutoff := kl.now().Add(-idle)
	for key, k := range kl.limiters {
		if k.lastSeen.Before(cutoff) {
			delete(kl.limiters, key)
		}
	}
	return len(kl.limiters)
}

// HostKey returns the host of urlStr for per-target throttling, or "" when
// it cannot be parsed.
func HostKey(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Host
}
