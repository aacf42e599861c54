// internal/engine/context.go
package engine

import (
	"context"
	"time"
)

// CombineContext returns a context that carries ctx1's values (the chromedp
// target) and is canceled when either ctx1 or ctx2 is done. ctx2 supplies the
// operation deadline and the caller's cancellation.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	if deadline, ok := ctx2.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}

	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// Detach returns a context that keeps ctx's values but ignores its deadline
// and cancellation.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
