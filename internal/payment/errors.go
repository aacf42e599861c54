// Package payment calls the card and mobile-money providers used to charge
// for exports.
package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParameters is returned before any outbound call when a
	// required field is absent.
	ErrMissingParameters = errors.New("missing parameters")
	// ErrNotConfigured is returned when provider credentials are absent.
	ErrNotConfigured = errors.New("payment provider not configured")
	// ErrInvalidAmount is returned for a price or amount that is not a
	// positive whole number.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ProviderError is a rejection from an external payment API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	// Body is the raw provider response, when there was one.
	Body []byte
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// GetStatusCode lets the retry policy decide on provider responses.
func (e *ProviderError) GetStatusCode() int {
	return e.StatusCode
}
