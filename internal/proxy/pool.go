// internal/proxy/pool.go
package proxy

import (
	"sync"
	"time"
)

// DefaultBench is how long a failed proxy is skipped.
const DefaultBench = 5 * time.Minute

// Pool rotates browser sessions over a fixed proxy list, skipping proxies
// that recently failed a navigation.
type Pool struct {
	mu      sync.Mutex
	proxies []string
	next    int
	bench   time.Duration
	failed  map[string]time.Time
	now     func() time.Time
}

// NewPool returns a pool over proxies. An empty list yields a pool whose
// Next always returns "" (direct connection).
func NewPool(proxies []string) *Pool {
	return &Pool{
		proxies: append([]string(nil), proxies...),
		bench:   DefaultBench,
		failed:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// Len returns the number of configured proxies.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

// Next returns the next proxy not on the bench. When every proxy is benched
// it returns the one benched longest ago.
func (p *Pool) Next() string {
	if p == nil {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}

	now := p.now()
	oldest := ""
	var oldestAt time.Time
	for range p.proxies {
		candidate := p.proxies[p.next]
		p.next = (p.next + 1) % len(p.proxies)

		failedAt, benched := p.failed[candidate]
		if !benched {
			return candidate
		}
		if now.Sub(failedAt) >= p.bench {
			delete(p.failed, candidate)
			return candidate
		}
		if oldest == "" || failedAt.Before(oldestAt) {
			oldest, oldestAt = candidate, failedAt
		}
	}
	return oldest
}

// MarkFailed benches proxy.
func (p *Pool) MarkFailed(proxy string) {
	if p == nil || proxy == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[proxy] = p.now()
}

// MarkHealthy takes proxy off the bench.
func (p *Pool) MarkHealthy(proxy string) {
	if p == nil || proxy == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, proxy)
}
