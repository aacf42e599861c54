// internal/engine/errors.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common engine errors
var (
	ErrBrowserNotFound   = errors.New("chrome browser not found")
	ErrBrowserNotStopped = errors.New("browser did not stop in time")
	ErrSessionClosed     = errors.New("session already closed")
	ErrNotNavigated      = errors.New("session has not navigated")
	ErrAlreadyClaimed    = errors.New("session already has a consumer")
	ErrNoSlot            = errors.New("no browser slot available")
	ErrNotReady          = errors.New("page readiness condition not met")
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	ErrCodeConfiguration     ErrorCode = "CONFIGURATION"
	ErrCodeLaunch            ErrorCode = "LAUNCH"
	ErrCodeBusy              ErrorCode = "BUSY"
	ErrCodeNavigation        ErrorCode = "NAVIGATION"
	ErrCodeNavigationTimeout ErrorCode = "NAVIGATION_TIMEOUT"
	ErrCodeExtraction        ErrorCode = "EXTRACTION"
	ErrCodeRender            ErrorCode = "RENDER"
	ErrCodeNotReady          ErrorCode = "NOT_READY"
	ErrCodeSessionState      ErrorCode = "SESSION_STATE"
	ErrCodeTeardown          ErrorCode = "TEARDOWN"
	// ErrCodeCanceled means the caller gave up; the target is not at fault.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// EngineError wraps errors with additional context
type EngineError struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Retry      bool
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// Is checks if the error matches the target
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Underlying, target)
}

// NewEngineError creates a new EngineError
func NewEngineError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{
		Code:       code,
		Message:    message,
		Underlying: err,
		Retry:      false,
		Details:    make(map[string]interface{}),
	}
}

// WithRetry marks the error as retryable
func (e *EngineError) WithRetry() *EngineError {
	e.Retry = true
	return e
}

// WithDetail adds a detail to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	e.Details[key] = value
	return e
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not an EngineError.
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &EngineError{Code: code})
}

// Classify maps a raw chromedp / Chrome failure raised during navigation
// onto the engine taxonomy. Errors that already are EngineErrors pass through.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewEngineError(ErrCodeNavigationTimeout, message, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewEngineError(ErrCodeCanceled, message, err)
	}

	// Chrome reports network failures as net::ERR_* strings
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "net::err_timed_out"):
		return NewEngineError(ErrCodeNavigationTimeout, message, err)
	case strings.Contains(msg, "net::err_"),
		strings.Contains(msg, "dns"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "ssl"),
		strings.Contains(msg, "tls"),
		strings.Contains(msg, "certificate"):
		return NewEngineError(ErrCodeNavigation, message, err).WithRetry()
	}

	return NewEngineError(ErrCodeNavigation, message, err)
}

// FromContext classifies an operation that failed because ctx ended: a
// deadline is NAVIGATION_TIMEOUT, a cancellation is CANCELED. It returns nil
// while ctx is still live.
func FromContext(ctx context.Context, message string, err error) *EngineError {
	switch ctxErr := ctx.Err(); {
	case ctxErr == nil:
		return nil
	case err == nil:
		err = ctxErr
	case !errors.Is(err, ctxErr):
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewEngineError(ErrCodeNavigationTimeout, message, err)
	}
	return NewEngineError(ErrCodeCanceled, message, err)
}
