package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single provider HTTP call.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a provider response is read.
const maxBody = 1 << 20

// Doer is the subset of *http.Client the Daraja client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// send performs req and returns the body of a 2xx response. Other statuses
// become a ProviderError carrying the provider's message when it has one.
func send(ctx context.Context, client Doer, provider string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s response unreadable: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    providerMessage(body, resp.Status),
			Body:       body,
		}
	}
	return body, nil
}

// providerMessage digs the human readable message out of a Daraja error
// body ({"errorMessage": ...}).
func providerMessage(body []byte, fallback string) string {
	var payload struct {
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.ErrorMessage != "" {
		return payload.ErrorMessage
	}
	return fallback
}
