// Package server exposes the export, scrape and payment flows over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/law-makers/cvpress/internal/callback"
	"github.com/law-makers/cvpress/internal/engine/extract"
	"github.com/law-makers/cvpress/internal/engine/render"
	"github.com/law-makers/cvpress/internal/metrics"
	"github.com/law-makers/cvpress/internal/payment"
	"github.com/law-makers/cvpress/internal/pipeline"
	"github.com/law-makers/cvpress/internal/ratelimit"
	"github.com/rs/zerolog"
)

// Exporter renders one resume page.
type Exporter interface {
	Export(ctx context.Context, req pipeline.ExportRequest) (*render.Artifact, error)
}

// Scraper extracts records from the configured jobs page.
type Scraper interface {
	Scrape(ctx context.Context, opts pipeline.ScrapeOptions) ([]extract.Record, error)
}

// MobilePayments starts STK push payments.
type MobilePayments interface {
	Push(ctx context.Context, req payment.PushRequest) (json.RawMessage, error)
}

// CardPayments creates card payment intents.
type CardPayments interface {
	CreateIntent(ctx context.Context, price int64) (*payment.Intent, error)
}

// Callbacks acknowledges provider notifications.
type Callbacks interface {
	Expect(key string)
	Receive(ctx context.Context, payload []byte) callback.Ack
}

// SessionStats reports browser session usage for health checks.
type SessionStats interface {
	Active() int
	Capacity() int
}

// Deps are the collaborators behind the routes. Nil payment or session
// collaborators disable their routes' backing features gracefully.
type Deps struct {
	Exporter  Exporter
	Scraper   Scraper
	Mpesa     MobilePayments
	Card      CardPayments
	Callbacks Callbacks
	Sessions  SessionStats
}

// Options tune the HTTP layer.
type Options struct {
	// Limiter throttles export and scrape per client address. Nil disables it.
	Limiter *ratelimit.KeyLimiter
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
	Logger       zerolog.Logger
	// Now is the clock behind /api/check and /api/date.
	Now func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
	opts Options
}

// New returns a Server.
func New(deps Deps, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{deps: deps, opts: opts}
}

// Routes builds the router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestContext, s.accessLog, s.recoverPanics, corsMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// browser-backed endpoints are rate limited per client
	heavy := api.PathPrefix("").Subrouter()
	heavy.Use(s.rateLimit)
	heavy.HandleFunc("/export", s.handleExport).Methods(http.MethodPost, http.MethodOptions)
	heavy.HandleFunc("/linkedin-scraper", s.handleScrape).Methods(http.MethodGet, http.MethodOptions)
	heavy.HandleFunc("/scrape", s.handleScrape).Methods(http.MethodGet, http.MethodOptions)

	api.HandleFunc("/mpesa/pay", s.handleMpesaPay).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/mpesa/callback", s.handleMpesaCallback).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/pay", s.handlePay).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/check", s.handleCheck).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/date", s.handleDate).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/return", s.handleReturn).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if s.deps.Sessions != nil {
		body["active_sessions"] = s.deps.Sessions.Active()
		body["max_sessions"] = s.deps.Sessions.Capacity()
	}
	writeJSON(w, r, http.StatusOK, body)
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writeBody(w, r, []byte("Hello World\n"))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Int("status", status).Msg("Failed to write response")
	}
}

// writeBody writes an already encoded body after the headers are set.
func writeBody(w http.ResponseWriter, r *http.Request, body []byte) {
	if _, err := w.Write(body); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Int("bytes", len(body)).Msg("Failed to write response")
	}
}
