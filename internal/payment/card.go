package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/law-makers/cvpress/internal/metrics"
	"github.com/law-makers/cvpress/internal/retry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

const (
	StripeAPIURL   = stripe.APIURL
	providerStripe = "stripe"
)

// CardConfig holds the Stripe secret key.
type CardConfig struct {
	SecretKey string
	// BaseURL overrides the Stripe API host.
	BaseURL string
}

// Intent is what the frontend needs to confirm a card payment.
type Intent struct {
	ClientSecret string `json:"client_secret"`
	// ServerTime is milliseconds since the Unix epoch.
	ServerTime int64 `json:"server_time"`
}

// Card creates Stripe PaymentIntents.
type Card struct {
	cfg     CardConfig
	intents *paymentintent.Client
	now     func() time.Time
	newKey  func() string
}

// NewCard returns a Stripe client sending through httpClient. A nil client
// uses a default one. The SDK's own retries are off; CreateIntent retries.
func NewCard(cfg CardConfig, httpClient *http.Client) *Card {
	if httpClient == nil {
		httpClient = defaultClient()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = StripeAPIURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(cfg.BaseURL),
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     stripeLogger{},
	})
	return &Card{
		cfg:     cfg,
		intents: &paymentintent.Client{B: backend, Key: cfg.SecretKey},
		now:     time.Now,
		newKey:  uuid.NewString,
	}
}

// ParsePrice reads a whole-dollar price as sent by the frontend.
func ParsePrice(raw string) (int64, error) {
	price, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: price %q", ErrInvalidAmount, raw)
	}
	return price, nil
}

// CreateIntent creates a USD PaymentIntent for price dollars. Retries reuse
// one Idempotency-Key so Stripe never creates two intents for one call.
func (c *Card) CreateIntent(ctx context.Context, price int64) (*Intent, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: price %d", ErrInvalidAmount, price)
	}
	if c.cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	logger := zerolog.Ctx(ctx).With().Str("provider", providerStripe).Logger()
	idempotencyKey := c.newKey()

	var secret string
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(price * 100),
			Currency: stripe.String(string(stripe.CurrencyUSD)),
		}
		params.Context = ctx
		params.AddMetadata("integration_check", "accept_a_payment")
		params.SetIdempotencyKey(idempotencyKey)

		pi, err := c.intents.New(params)
		if err != nil {
			return stripeError(err)
		}
		if pi.ClientSecret == "" {
			return retry.Permanent(&ProviderError{Provider: providerStripe, Message: "payment intent has no client_secret"})
		}
		secret = pi.ClientSecret
		return nil
	})
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(providerStripe, "error").Inc()
		logger.Error().Err(err).Int64("price", price).Msg("Failed to create payment intent")
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues(providerStripe, "ok").Inc()
	logger.Info().Int64("price", price).Str("idempotency_key", idempotencyKey).Msg("Payment intent created")
	return &Intent{ClientSecret: secret, ServerTime: c.now().UnixMilli()}, nil
}

// stripeError turns an API rejection into a ProviderError so the retry
// policy and the HTTP layer see its status. Transport errors pass through.
func stripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%s request failed: %w", providerStripe, err)
	}
	msg := se.Msg
	if msg == "" {
		msg = http.StatusText(se.HTTPStatusCode)
	}
	return &ProviderError{
		Provider:   providerStripe,
		StatusCode: se.HTTPStatusCode,
		Message:    msg,
	}
}

// stripeLogger routes the SDK's log lines through the global zerolog logger.
type stripeLogger struct{}

func (stripeLogger) Debugf(format string, v ...interface{}) {
	log.Debug().Str("provider", providerStripe).Msgf(format, v...)
}

func (stripeLogger) Infof(format string, v ...interface{}) {
	log.Debug().Str("provider", providerStripe).Msgf(format, v...)
}

func (stripeLogger) Warnf(format string, v ...interface{}) {
	log.Warn().Str("provider", providerStripe).Msgf(format, v...)
}

func (stripeLogger) Errorf(format string, v ...interface{}) {
	log.Error().Str("provider", providerStripe).Msgf(format, v...)
}
