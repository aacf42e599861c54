package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/law-makers/cvpress/internal/metrics"
	"github.com/law-makers/cvpress/internal/retry"
	"github.com/rs/zerolog"
)

const (
	MpesaSandboxURL    = "https://sandbox.safaricom.co.ke"
	MpesaProductionURL = "https://api.safaricom.co.ke"

	// DefaultPartyB is the till receiving buy-goods payments.
	DefaultPartyB = "6444134"

	mpesaTimestamp = "20060102150405"
	providerMpesa  = "mpesa"
)

// MpesaConfig holds Daraja credentials and routing.
type MpesaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	// Env selects the API host: "production" or anything else for sandbox.
	Env         string
	CallbackURL string
	PartyB      string
	// BaseURL overrides the host picked from Env.
	BaseURL string
}

// Configured reports whether every credential is present.
func (c MpesaConfig) Configured() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.Shortcode != "" && c.Passkey != ""
}

// PushRequest is one STK push.
type PushRequest struct {
	Phone      string
	Amount     string
	AccountRef string
}

// Validate checks that every field is present.
func (r PushRequest) Validate() error {
	if strings.TrimSpace(r.Phone) == "" || strings.TrimSpace(r.Amount) == "" || strings.TrimSpace(r.AccountRef) == "" {
		return ErrMissingParameters
	}
	return nil
}

// Mpesa initiates STK push payments through Safaricom Daraja.
type Mpesa struct {
	cfg    MpesaConfig
	client Doer
	now    func() time.Time
}

// NewMpesa returns a Daraja client. A nil client uses a default one.
func NewMpesa(cfg MpesaConfig, client Doer) *Mpesa {
	if client == nil {
		client = defaultClient()
	}
	if cfg.PartyB == "" {
		cfg.PartyB = DefaultPartyB
	}
	return &Mpesa{cfg: cfg, client: client, now: time.Now}
}

// BaseURL returns the Daraja host in use.
func (m *Mpesa) BaseURL() string {
	switch {
	case m.cfg.BaseURL != "":
		return strings.TrimRight(m.cfg.BaseURL, "/")
	case m.cfg.Env == "production":
		return MpesaProductionURL
	default:
		return MpesaSandboxURL
	}
}

// Token fetches an OAuth access token. Token requests are idempotent and
// retried on 429/5xx.
func (m *Mpesa) Token(ctx context.Context) (string, error) {
	if !m.cfg.Configured() {
		return "", ErrNotConfigured
	}

	basic := base64.StdEncoding.EncodeToString([]byte(m.cfg.ConsumerKey + ":" + m.cfg.ConsumerSecret))
	endpoint := m.BaseURL() + "/oauth/v1/generate?grant_type=client_credentials"

	var token string
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Basic "+basic)

		body, err := send(ctx, m.client, providerMpesa, req)
		if err != nil {
			return err
		}

		var payload struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return retry.Permanent(fmt.Errorf("mpesa token response: %w", err))
		}
		if payload.AccessToken == "" {
			return retry.Permanent(&ProviderError{Provider: providerMpesa, Message: "token response has no access_token", Body: body})
		}
		token = payload.AccessToken
		return nil
	})
	return token, err
}

type stkPush struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// Password derives the STK password for timestamp.
func (m *Mpesa) Password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(m.cfg.Shortcode + m.cfg.Passkey + timestamp))
}

// Push sends an STK push prompt to the customer's phone and returns the
// provider's response verbatim. The request is validated before any
// outbound call. The push itself is sent once: repeating it would prompt
// the customer twice.
func (m *Mpesa) Push(ctx context.Context, req PushRequest) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx).With().Str("provider", providerMpesa).Str("account_ref", req.AccountRef).Logger()

	token, err := m.Token(ctx)
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(providerMpesa, "token_error").Inc()
		logger.Error().Err(err).Msg("Failed to obtain Daraja token")
		return nil, err
	}

	timestamp := m.now().Format(mpesaTimestamp)
	payload, err := json.Marshal(stkPush{
		BusinessShortCode: m.cfg.Shortcode,
		Password:          m.Password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerBuyGoodsOnline",
		Amount:            strings.TrimSpace(req.Amount),
		PartyA:            req.Phone,
		PartyB:            m.cfg.PartyB,
		PhoneNumber:       req.Phone,
		CallBackURL:       m.cfg.CallbackURL,
		AccountReference:  req.AccountRef,
		TransactionDesc:   "Payment",
	})
	if err != nil {
		return nil, err
	}

	var body []byte
	err = retry.Do(ctx, retry.Once(), func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL()+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Content-Type", "application/json")

		body, err = send(ctx, m.client, providerMpesa, httpReq)
		return err
	})
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(providerMpesa, "error").Inc()
		logger.Error().Err(err).Msg("STK push failed")
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues(providerMpesa, "ok").Inc()
	logger.Info().Msg("STK push accepted")
	return json.RawMessage(body), nil
}
