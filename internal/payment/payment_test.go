package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMpesaConfig(baseURL string) MpesaConfig {
	return MpesaConfig{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://cvpress.test/api/mpesa/callback",
		BaseURL:        baseURL,
	}
}

type darajaServer struct {
	*httptest.Server
	tokenCalls atomic.Int32
	pushCalls  atomic.Int32
	tokenFails int32
	pushStatus int

	mu       sync.Mutex
	lastPush map[string]any
	lastAuth string
}

func newDaraja(t *testing.T) *darajaServer {
	d := &darajaServer{pushStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		n := d.tokenCalls.Add(1)
		if n <= d.tokenFails {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" || r.URL.Query().Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "expires_in": "3599"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		d.pushCalls.Add(1)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		d.mu.Lock()
		d.lastPush = body
		d.lastAuth = r.Header.Get("Authorization")
		d.mu.Unlock()

		w.WriteHeader(d.pushStatus)
		if d.pushStatus != http.StatusOK {
			io.WriteString(w, `{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`)
			return
		}
		io.WriteString(w, `{"MerchantRequestID":"29115","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success"}`)
	})
	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Close)
	return d
}

func TestMpesa_Push(t *testing.T) {
	d := newDaraja(t)
	m := NewMpesa(testMpesaConfig(d.URL), d.Client())
	m.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }

	resp, err := m.Push(context.Background(), PushRequest{Phone: "254708374149", Amount: "10", AccountRef: "CV-42"})
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp, &out))
	assert.Equal(t, "ws_CO_1", out["CheckoutRequestID"])

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, "Bearer tok", d.lastAuth)
	assert.Equal(t, "20240305140709", d.lastPush["Timestamp"])
	wantPassword := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + "20240305140709"))
	assert.Equal(t, wantPassword, d.lastPush["Password"])
	assert.Equal(t, "CustomerBuyGoodsOnline", d.lastPush["TransactionType"])
	assert.Equal(t, DefaultPartyB, d.lastPush["PartyB"])
	assert.Equal(t, "254708374149", d.lastPush["PartyA"])
	assert.Equal(t, "254708374149", d.lastPush["PhoneNumber"])
	assert.Equal(t, "CV-42", d.lastPush["AccountReference"])
	assert.Equal(t, "Payment", d.lastPush["TransactionDesc"])
	assert.Equal(t, "https://cvpress.test/api/mpesa/callback", d.lastPush["CallBackURL"])
}

func TestMpesa_MissingParametersMakesNoCall(t *testing.T) {
	d := newDaraja(t)
	m := NewMpesa(testMpesaConfig(d.URL), d.Client())

	for _, req := range []PushRequest{
		{Amount: "10", AccountRef: "x"},
		{Phone: "2547", AccountRef: "x"},
		{Phone: "2547", Amount: "10"},
		{Phone: "  ", Amount: "10", AccountRef: "x"},
	} {
		_, err := m.Push(context.Background(), req)
		assert.ErrorIs(t, err, ErrMissingParameters)
	}
	assert.Zero(t, d.tokenCalls.Load())
	assert.Zero(t, d.pushCalls.Load())
}

func TestMpesa_NotConfigured(t *testing.T) {
	m := NewMpesa(MpesaConfig{}, nil)
	_, err := m.Push(context.Background(), PushRequest{Phone: "1", Amount: "1", AccountRef: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMpesa_TokenRetriedPushNot(t *testing.T) {
	d := newDaraja(t)
	d.tokenFails = 1
	d.pushStatus = http.StatusBadRequest
	m := NewMpesa(testMpesaConfig(d.URL), d.Client())

	_, err := m.Push(context.Background(), PushRequest{Phone: "2547", Amount: "-1", AccountRef: "x"})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Equal(t, "Bad Request - Invalid Amount", pe.Message)

	assert.Equal(t, int32(2), d.tokenCalls.Load())
	assert.Equal(t, int32(1), d.pushCalls.Load())
}

func TestMpesa_BaseURL(t *testing.T) {
	assert.Equal(t, MpesaSandboxURL, NewMpesa(MpesaConfig{}, nil).BaseURL())
	assert.Equal(t, MpesaProductionURL, NewMpesa(MpesaConfig{Env: "production"}, nil).BaseURL())
}

func TestCard_CreateIntent(t *testing.T) {
	var calls atomic.Int32
	var keys sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		keys.Store(r.Header.Get("Idempotency-Key"), true)

		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		assert.Equal(t, "2500", form.Get("amount"))
		assert.Equal(t, "usd", form.Get("currency"))
		assert.Equal(t, "accept_a_payment", form.Get("metadata[integration_check]"))

		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":{"type":"api_error","message":"An unknown error occurred"}}`)
			return
		}
		io.WriteString(w, `{"id":"pi_1","object":"payment_intent","amount":2500,"currency":"usd","client_secret":"pi_1_secret_2"}`)
	}))
	defer srv.Close()

	c := NewCard(CardConfig{SecretKey: "sk_test", BaseURL: srv.URL}, srv.Client())
	c.now = func() time.Time { return time.UnixMilli(1700000000123) }

	intent, err := c.CreateIntent(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret_2", intent.ClientSecret)
	assert.Equal(t, int64(1700000000123), intent.ServerTime)
	assert.Equal(t, int32(2), calls.Load())

	distinct := 0
	keys.Range(func(_, _ any) bool { distinct++; return true })
	assert.Equal(t, 1, distinct, "retries reuse the idempotency key")
}

func TestCard_ProviderRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		io.WriteString(w, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)
	}))
	defer srv.Close()

	c := NewCard(CardConfig{SecretKey: "sk_test", BaseURL: srv.URL}, srv.Client())
	_, err := c.CreateIntent(context.Background(), 5)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Your card was declined.", pe.Message)
	assert.Equal(t, http.StatusPaymentRequired, pe.GetStatusCode())
	assert.Equal(t, int32(1), calls.Load(), "a declined card is not retried")
}

func TestCard_TransportFailureIsNotAProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := NewCard(CardConfig{SecretKey: "sk_test", BaseURL: addr}, &http.Client{Timeout: time.Second})
	c.newKey = func() string { return "fixed-key" }
	_, err := c.CreateIntent(context.Background(), 5)
	require.Error(t, err)

	var pe *ProviderError
	assert.False(t, errors.As(err, &pe))
	assert.Contains(t, err.Error(), "stripe request failed")
}

func TestCard_Validation(t *testing.T) {
	c := NewCard(CardConfig{}, nil)
	_, err := c.CreateIntent(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = c.CreateIntent(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestParsePrice(t *testing.T) {
	p, err := ParsePrice(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12), p)

	for _, bad := range []string{"", "abc", "-3", "0", "1.5"} {
		_, err := ParsePrice(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, "price %q", bad)
	}
}
