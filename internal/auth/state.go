// internal/auth/state.go
package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// AuthState is a previously captured authenticated browsing session for one
// target site. It is replaced wholesale on refresh, never patched.
type AuthState struct {
	Target    string            `json:"target"`
	URL       string            `json:"url,omitempty"`
	Cookies   []Cookie          `json:"cookies"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// Cookie represents a browser cookie
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

type cookieFields Cookie

// UnmarshalJSON accepts the "expiry" (webdriver) and "expirationDate"
// (browser extension) spellings alongside "expires".
func (c *Cookie) UnmarshalJSON(data []byte) error {
	var aux struct {
		cookieFields
		Expiry         *float64 `json:"expiry"`
		ExpirationDate *float64 `json:"expirationDate"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Cookie(aux.cookieFields)
	if c.Expires == 0 {
		switch {
		case aux.Expiry != nil:
			c.Expires = *aux.Expiry
		case aux.ExpirationDate != nil:
			c.Expires = *aux.ExpirationDate
		}
	}
	return nil
}

// Empty reports whether the state carries nothing to inject.
func (s AuthState) Empty() bool {
	return len(s.Cookies) == 0 && len(s.Headers) == 0
}

// Expired reports whether the state as a whole is past its expiry.
func (s AuthState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// NewState builds a state for target. ExpiresAt is the latest cookie
// expiry, so the state counts as expired only once every cookie has lapsed.
func NewState(target, url string, cookies []Cookie, headers map[string]string) AuthState {
	state := AuthState{
		Target:    target,
		URL:       url,
		Cookies:   cookies,
		Headers:   headers,
		CreatedAt: time.Now(),
	}

	maxExpires := 0.0
	for _, c := range cookies {
		if c.Expires > maxExpires {
			maxExpires = c.Expires
		}
	}
	if maxExpires > 0 {
		state.ExpiresAt = time.Unix(int64(maxExpires), 0)
	}
	return state
}

// ParseState decodes either a full state envelope or a bare JSON array of
// cookie records.
func ParseState(data []byte) (AuthState, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return AuthState{}, fmt.Errorf("empty auth state")
	}

	if trimmed[0] == '[' {
		var cookies []Cookie
		if err := json.Unmarshal(trimmed, &cookies); err != nil {
			return AuthState{}, fmt.Errorf("failed to decode cookie array: %w", err)
		}
		return AuthState{Cookies: cookies}, nil
	}

	var state AuthState
	if err := json.Unmarshal(trimmed, &state); err != nil {
		return AuthState{}, fmt.Errorf("failed to decode auth state: %w", err)
	}
	return state, nil
}

// CookieParams converts the state's cookies to the DevTools format,
// dropping cookies that have already expired.
func (s AuthState) CookieParams(now time.Time) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		if c.Name == "" {
			continue
		}
		if c.Expires > 0 && now.Unix() > int64(c.Expires) {
			continue
		}

		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if param.Path == "" {
			param.Path = "/"
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &expires
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none", "no_restriction":
			param.SameSite = network.CookieSameSiteNone
		}
		params = append(params, param)
	}
	return params
}
