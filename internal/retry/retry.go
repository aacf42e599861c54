// internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxAttempts          int           // Total attempts, including the first
	InitialBackoff       time.Duration // Wait before the second attempt
	MaxBackoff           time.Duration // Upper bound for any single wait
	Multiplier           float64       // Backoff growth factor
	RetryableStatusCodes []int         // HTTP status codes that should trigger retry
}

// DefaultConfig suits idempotent calls to payment provider APIs.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
	}
}

// Once performs a single attempt.
func Once() Config {
	return Config{MaxAttempts: 1}
}

// StatusCoder is implemented by errors that carry an HTTP status code
type StatusCoder interface {
	GetStatusCode() int
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs fn until it succeeds, returns a non-retryable error, attempts run
// out or ctx is done. The error of the last attempt is returned unwrapped
// of any Permanent marker.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	logger := zerolog.Ctx(ctx)

	var (
		lastErr  error
		attempts int
		stopped  bool
	)
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			stopped = true
			return backoff.Permanent(perm.err)
		}
		lastErr = err
		if !shouldRetry(err, cfg) {
			stopped = true
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug().
			Int("attempt", attempts).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("backoff", wait).
			Err(err).
			Msg("Retrying after backoff")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(cfg), uint64(cfg.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, policy, notify)
	switch {
	case err == nil:
		if attempts > 1 {
			logger.Debug().Int("attempts", attempts).Msg("Retry succeeded")
		}
		return nil
	case stopped:
		return err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()) && lastErr != nil:
		return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
	case cfg.MaxAttempts == 1:
		return lastErr
	}

	logger.Warn().
		Int("attempts", attempts).
		Err(lastErr).
		Msg("Max retry attempts exceeded")
	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// newBackOff builds the exponential schedule for cfg with jitter and no
// elapsed-time cap; the attempt count is the only limit.
func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialBackoff > 0 {
		b.InitialInterval = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		b.MaxInterval = cfg.MaxBackoff
	}
	if cfg.Multiplier > 0 {
		b.Multiplier = cfg.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func shouldRetry(err error, cfg Config) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return slices.Contains(cfg.RetryableStatusCodes, sc.GetStatusCode())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Timeout()
	}

	// transport failures (connection reset, refused) are worth another try
	return true
}
