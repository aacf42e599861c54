package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL checks that urlStr is an absolute http(s) address.
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: must be http or https, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	return nil
}

// ResolveURL resolves a possibly-relative href against a base URL and returns a string
func ResolveURL(base, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(u).String()
}

// JoinPath appends segments to base, escaping each one so it stays a single
// path element. Empty and dot segments are rejected.
func JoinPath(base string, segments ...string) (string, error) {
	if err := ValidateURL(base); err != nil {
		return "", err
	}
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		switch strings.TrimSpace(seg) {
		case "", ".", "..":
			return "", fmt.Errorf("invalid path segment %d: %q", i, seg)
		}
		escaped[i] = url.PathEscape(seg)
	}
	return url.JoinPath(base, escaped...)
}
