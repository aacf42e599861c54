// internal/auth/importer.go
package auth

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Import formats accepted by Import.
const (
	FormatJSON     = "json"
	FormatNetscape = "netscape"
)

// Import reads cookies exported from a browser in the given format.
func Import(r io.Reader, format string) ([]Cookie, error) {
	switch format {
	case FormatJSON:
		return ParseJSON(r)
	case FormatNetscape:
		return ParseNetscape(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s (use: json, netscape)", format)
	}
}

// ParseJSON reads a cookie array or a full state envelope.
func ParseJSON(r io.Reader) ([]Cookie, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	state, err := ParseState(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return state.Cookies, nil
}

// ParseNetscape reads a curl/wget style cookies.txt file.
func ParseNetscape(r io.Reader) ([]Cookie, error) {
	var cookies []Cookie
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		httpOnly := false
		if strings.HasPrefix(line, "#HttpOnly_") {
			line = strings.TrimPrefix(line, "#HttpOnly_")
			httpOnly = true
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			fields = strings.Fields(line)
		}
		if len(fields) < 7 {
			continue
		}

		cookie := Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HTTPOnly: httpOnly,
		}

		if fields[4] != "0" {
			if secs, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
				cookie.Expires = float64(secs)
			} else if expiry, err := time.Parse("2006-01-02", fields[4]); err == nil {
				cookie.Expires = float64(expiry.Unix())
			}
		}

		cookies = append(cookies, cookie)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cookies, nil
}

// ParseHeaders parses "Key: Value" pairs as given on the command line.
func ParseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q (expected 'Key: Value')", pair)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}
