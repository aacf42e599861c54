// internal/engine/slots.go
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Slots caps the number of live browser processes. A zero-capacity Slots
// admits everyone.
type Slots struct {
	sem      *semaphore.Weighted
	capacity int
}

// NewSlots returns a limiter admitting capacity concurrent sessions;
// capacity <= 0 means unbounded.
func NewSlots(capacity int) *Slots {
	if capacity <= 0 {
		return &Slots{}
	}
	return &Slots{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Capacity returns the configured cap, 0 when unbounded.
func (s *Slots) Capacity() int {
	return s.capacity
}

// Acquire waits up to wait (or until ctx is done) for a slot. The returned
// release func is safe to call more than once.
func (s *Slots) Acquire(ctx context.Context, wait time.Duration) (func(), error) {
	if s.sem == nil {
		return func() {}, nil
	}

	acquireCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	if err := s.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewEngineError(ErrCodeBusy, "all browser slots in use", ErrNoSlot).
			WithRetry().
			WithDetail("capacity", s.capacity).
			WithDetail("waited", wait.String())
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.sem.Release(1) })
	}, nil
}
