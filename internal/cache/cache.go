// internal/cache/cache.go
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache is a bounded key/value store with per-entry expiry.
type Cache[V any] interface {
	// Get returns the live value for key.
	Get(key string) (V, bool)

	// Set stores value under key for ttl, replacing any previous value.
	Set(key string, value V, ttl time.Duration)

	// SetIfAbsent stores value only when key holds no live entry. It returns
	// the value now stored and whether it was already present.
	SetIfAbsent(key string, value V, ttl time.Duration) (V, bool)

	// Delete removes key. Missing keys are ignored.
	Delete(key string)

	// Len returns the number of entries, including expired ones not yet swept.
	Len() int

	// Close stops background cleanup.
	Close()
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// MemoryCache keeps at most maxEntries values, evicting the least recently
// used first. Expired entries are dropped on access and by a periodic sweep.
type MemoryCache[V any] struct {
	mu         sync.Mutex
	store      map[string]*list.Element
	lru        *list.List
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
	cancel     context.CancelFunc
	done       chan struct{}
	hits       uint64
	misses     uint64
	evictions  uint64
}

// Options configures a MemoryCache.
type Options struct {
	MaxEntries    int
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

// NewMemoryCache creates a cache and starts its sweeper.
func NewMemoryCache[V any](opts Options) *MemoryCache[V] {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 24 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	mc := &MemoryCache[V]{
		store:      make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		now:        time.Now,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go mc.sweep(ctx, opts.SweepInterval)
	return mc
}

// Get returns the live value for key and marks it recently used.
func (mc *MemoryCache[V]) Get(key string) (V, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	var zero V
	el, ok := mc.store[key]
	if !ok {
		mc.misses++
		return zero, false
	}
	e := el.Value.(*entry[V])
	if mc.now().After(e.expiresAt) {
		mc.removeElement(el)
		mc.misses++
		return zero, false
	}

	mc.lru.MoveToFront(el)
	mc.hits++
	return e.value, true
}

// Set stores value under key.
func (mc *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.set(key, value, ttl)
}

// SetIfAbsent stores value unless a live entry exists, atomically.
func (mc *MemoryCache[V]) SetIfAbsent(key string, value V, ttl time.Duration) (V, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if el, ok := mc.store[key]; ok {
		e := el.Value.(*entry[V])
		if !mc.now().After(e.expiresAt) {
			mc.lru.MoveToFront(el)
			mc.hits++
			return e.value, true
		}
		mc.removeElement(el)
	}
	mc.misses++
	mc.set(key, value, ttl)
	return value, false
}

func (mc *MemoryCache[V]) set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}
	expiresAt := mc.now().Add(ttl)

	if el, ok := mc.store[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expiresAt = expiresAt
		mc.lru.MoveToFront(el)
		return
	}

	for mc.lru.Len() >= mc.maxEntries {
		mc.evictLRU()
	}

	mc.store[key] = mc.lru.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
}

// Delete removes key.
func (mc *MemoryCache[V]) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if el, ok := mc.store[key]; ok {
		mc.removeElement(el)
	}
}

// Len returns the number of stored entries.
func (mc *MemoryCache[V]) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Len()
}

// Close stops the sweeper and waits for it to exit.
func (mc *MemoryCache[V]) Close() {
	mc.cancel()
	<-mc.done
}

// must be called with lock held
func (mc *MemoryCache[V]) evictLRU() {
	el := mc.lru.Back()
	if el == nil {
		return
	}
	mc.removeElement(el)
	mc.evictions++
	log.Debug().Str("key", el.Value.(*entry[V]).key).Msg("Evicted from cache (LRU)")
}

// must be called with lock held
func (mc *MemoryCache[V]) removeElement(el *list.Element) {
	mc.lru.Remove(el)
	delete(mc.store, el.Value.(*entry[V]).key)
}

func (mc *MemoryCache[V]) sweep(ctx context.Context, interval time.Duration) {
	defer close(mc.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.removeExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (mc *MemoryCache[V]) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	var next *list.Element
	for el := mc.lru.Front(); el != nil; el = next {
		next = el.Next()
		if now.After(el.Value.(*entry[V]).expiresAt) {
			mc.removeElement(el)
		}
	}
}

// Stats returns hit, miss and eviction counters.
func (mc *MemoryCache[V]) Stats() map[string]interface{} {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	hitRate := 0.0
	if total := mc.hits + mc.misses; total > 0 {
		hitRate = float64(mc.hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"entries":     mc.lru.Len(),
		"max_entries": mc.maxEntries,
		"hits":        mc.hits,
		"misses":      mc.misses,
		"evictions":   mc.evictions,
		"hit_rate":    hitRate,
	}
}
