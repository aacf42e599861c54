package auth

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState_BareArray(t *testing.T) {
	data := []byte(`[
		{"name":"li_at","value":"token","domain":".linkedin.com","path":"/","expiry":1900000000},
		{"name":"JSESSIONID","value":"ajax:1","domain":".linkedin.com","expirationDate":1800000000.5},
		{"name":"lang","value":"en","domain":".linkedin.com","expires":1700000000}
	]`)

	state, err := ParseState(data)
	require.NoError(t, err)
	require.Len(t, state.Cookies, 3)

	assert.Equal(t, "li_at", state.Cookies[0].Name)
	assert.Equal(t, float64(1900000000), state.Cookies[0].Expires)
	assert.Equal(t, 1800000000.5, state.Cookies[1].Expires)
	assert.Equal(t, float64(1700000000), state.Cookies[2].Expires)
	assert.Empty(t, state.Target)
}

func TestParseState_Envelope(t *testing.T) {
	data := []byte(`{
		"target":"linkedin",
		"url":"https://www.linkedin.com/login",
		"cookies":[{"name":"li_at","value":"token","domain":".linkedin.com"}],
		"headers":{"Accept-Language":"en-US"}
	}`)

	state, err := ParseState(data)
	require.NoError(t, err)
	assert.Equal(t, "linkedin", state.Target)
	assert.Equal(t, "en-US", state.Headers["Accept-Language"])
	assert.False(t, state.Empty())
}

func TestParseState_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "{not json", "[1,2"} {
		_, err := ParseState([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestNewState_ExpiresAtLatestCookie(t *testing.T) {
	state := NewState("linkedin", "", []Cookie{
		{Name: "short", Expires: 1000},
		{Name: "long", Expires: 5000},
		{Name: "session"},
	}, nil)

	assert.Equal(t, time.Unix(5000, 0), state.ExpiresAt)
	assert.False(t, state.Expired(time.Unix(4999, 0)))
	assert.True(t, state.Expired(time.Unix(5001, 0)))
}

func TestNewState_SessionCookiesNeverExpire(t *testing.T) {
	state := NewState("site", "", []Cookie{{Name: "session"}}, nil)
	assert.True(t, state.ExpiresAt.IsZero())
	assert.False(t, state.Expired(time.Now().Add(100*365*24*time.Hour)))
}

func TestCookieParams(t *testing.T) {
	now := time.Unix(2000, 0)
	state := AuthState{Cookies: []Cookie{
		{Name: "live", Value: "1", Domain: ".example.com", Expires: 3000, SameSite: "Lax", Secure: true},
		{Name: "stale", Value: "2", Domain: ".example.com", Expires: 1000},
		{Name: "", Value: "nameless"},
		{Name: "session", Value: "3", Domain: ".example.com", Path: "/app", SameSite: "no_restriction"},
	}}

	params := state.CookieParams(now)
	require.Len(t, params, 2)

	live := params[0]
	assert.Equal(t, "live", live.Name)
	assert.Equal(t, "/", live.Path)
	assert.Equal(t, network.CookieSameSiteLax, live.SameSite)
	require.NotNil(t, live.Expires)
	assert.Equal(t, int64(3000), live.Expires.Time().Unix())

	session := params[1]
	assert.Equal(t, "/app", session.Path)
	assert.Nil(t, session.Expires)
	assert.Equal(t, network.CookieSameSiteNone, session.SameSite)
}

func TestAuthState_Empty(t *testing.T) {
	assert.True(t, AuthState{}.Empty())
	assert.False(t, AuthState{Headers: map[string]string{"X": "1"}}.Empty())
}
