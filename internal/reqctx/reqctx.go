package reqctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type key int

const requestKey key = 0

// HeaderRequestID carries the request id in and out of the HTTP server.
const HeaderRequestID = "X-Request-ID"

type RequestContext struct {
	RequestID string
	StartTime time.Time
}

// WithRequestContext attaches a request id to ctx, reusing id when the
// caller supplied one, and scopes the context logger to it.
func WithRequestContext(ctx context.Context, id string) context.Context {
	if id == "" || len(id) > 64 {
		id = generateID()
	}
	ctx = context.WithValue(ctx, requestKey, &RequestContext{
		RequestID: id,
		StartTime: time.Now(),
	})

	logger := zerolog.Ctx(ctx).With().Str("request_id", id).Logger()
	return logger.WithContext(ctx)
}

func GetRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestKey).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{
		RequestID: "unknown",
		StartTime: time.Now(),
	}
}

// Elapsed returns the time since the request started.
func Elapsed(ctx context.Context) time.Duration {
	return time.Since(GetRequestContext(ctx).StartTime)
}

func generateID() string {
	return uuid.NewString()
}

// RequestError wraps an error with request context
type RequestError struct {
	RequestID string
	Err       error
}

// Error implements the error interface
func (e *RequestError) Error() string {
	return fmt.Sprintf("[%s] %v", e.RequestID, e.Err)
}

// Unwrap returns the underlying error
func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError creates a new RequestError from context
func NewRequestError(ctx context.Context, err error) error {
	rc := GetRequestContext(ctx)
	return &RequestError{
		RequestID: rc.RequestID,
		Err:       err,
	}
}
