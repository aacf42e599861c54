// internal/engine/target.go
package engine

import (
	"fmt"
	"time"

	urlutil "github.com/law-makers/cvpress/internal/utils/url"
)

// DefaultMaxWait bounds navigation plus readiness when a Target sets none.
const DefaultMaxWait = 60 * time.Second

// Readiness is the condition that marks a navigated page safe to read or
// render. Selector waits for a visible DOM marker; Grace is a settle delay
// applied after the load event (and after Selector, when both are set).
// A Grace-only readiness is a degraded fallback and is logged as such.
type Readiness struct {
	Selector string
	// Timeout bounds the selector wait on its own; zero shares the
	// navigation budget.
	Timeout time.Duration
	Grace   time.Duration
}

// DelayOnly reports whether readiness rests on a fixed delay alone.
func (r Readiness) DelayOnly() bool {
	return r.Selector == "" && r.Grace > 0
}

// Target is an immutable navigation request.
type Target struct {
	URL       string
	MaxWait   time.Duration
	Readiness Readiness
}

// Validate checks the target before any browser work happens.
func (t Target) Validate() error {
	if t.URL == "" {
		return NewEngineError(ErrCodeConfiguration, "navigation target has no address", nil)
	}
	if err := urlutil.ValidateURL(t.URL); err != nil {
		return NewEngineError(ErrCodeConfiguration, fmt.Sprintf("invalid navigation address %q", t.URL), err)
	}
	if t.MaxWait < 0 || t.Readiness.Timeout < 0 || t.Readiness.Grace < 0 {
		return NewEngineError(ErrCodeConfiguration, "negative navigation budget", nil)
	}
	return nil
}

func (t Target) maxWait() time.Duration {
	if t.MaxWait > 0 {
		return t.MaxWait
	}
	return DefaultMaxWait
}
