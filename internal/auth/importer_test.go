package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetscape(t *testing.T) {
	input := strings.Join([]string{
		"# Netscape HTTP Cookie File",
		"",
		".linkedin.com\tTRUE\t/\tTRUE\t1900000000\tli_at\ttoken",
		"#HttpOnly_.linkedin.com\tTRUE\t/\tFALSE\t0\tJSESSIONID\tajax:1",
		"broken line",
	}, "\n")

	cookies, err := ParseNetscape(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	assert.Equal(t, Cookie{
		Name: "li_at", Value: "token", Domain: ".linkedin.com", Path: "/",
		Secure: true, Expires: 1900000000,
	}, cookies[0])

	assert.Equal(t, "JSESSIONID", cookies[1].Name)
	assert.True(t, cookies[1].HTTPOnly)
	assert.Zero(t, cookies[1].Expires)
}

func TestImport(t *testing.T) {
	cookies, err := Import(strings.NewReader(`[{"name":"a","value":"1"}]`), FormatJSON)
	require.NoError(t, err)
	assert.Len(t, cookies, 1)

	_, err = Import(strings.NewReader(""), "har")
	assert.Error(t, err)

	_, err = Import(strings.NewReader("{"), FormatJSON)
	assert.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	headers, err := ParseHeaders([]string{"Authorization: Bearer abc", "X-Empty:", "Accept-Language:en"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Authorization":   "Bearer abc",
		"X-Empty":         "",
		"Accept-Language": "en",
	}, headers)

	_, err = ParseHeaders([]string{"no-colon"})
	assert.Error(t, err)

	_, err = ParseHeaders([]string{": value"})
	assert.Error(t, err)
}
