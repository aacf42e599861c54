// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/law-makers/cvpress/internal/auth"
	"github.com/law-makers/cvpress/internal/cache"
	"github.com/law-makers/cvpress/internal/callback"
	"github.com/law-makers/cvpress/internal/config"
	"github.com/law-makers/cvpress/internal/engine"
	"github.com/law-makers/cvpress/internal/payment"
	"github.com/law-makers/cvpress/internal/pipeline"
	"github.com/law-makers/cvpress/internal/proxy"
	"github.com/law-makers/cvpress/internal/ratelimit"
	"github.com/law-makers/cvpress/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands.
// Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config     *config.Config
	Logger     *zerolog.Logger
	Opener     *engine.Opener
	AuthStore  auth.Store
	Hosts      *ratelimit.KeyLimiter
	Clients    *ratelimit.KeyLimiter
	HTTPClient *http.Client
	Exporter   *pipeline.Exporter
	Scraper    *pipeline.Scraper
	Mpesa      *payment.Mpesa
	Card       *payment.Card
	Callbacks  *callback.Notifier
	ledger     *cache.MemoryCache[callback.Receipt]
	stopPrune  context.CancelFunc
	pruned     chan struct{}
	startTime  time.Time
}

// limiterIdle is how long an unused rate limit bucket is kept.
const limiterIdle = 10 * time.Minute

// New creates and initializes a new Application with all dependencies.
//
// It performs the following initialization steps:
//   - Configures logging based on the provided config
//   - Opens the auth state store
//   - Creates the session opener with its proxy rotation and session cap
//   - Builds the export and scrape pipelines
//   - Initializes the payment clients and the callback ledger
//
// No browser is started here; every export or scrape launches its own.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := setupLogger(cfg)
	logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Msg("Logger initialized")

	store, err := auth.OpenStore(cfg.AuthStore, cfg.AuthDir)
	if err != nil {
		return nil, fmt.Errorf("open auth store: %w", err)
	}
	logger.Debug().Str("kind", cfg.AuthStore).Msg("Auth store opened")

	proxies := proxy.NewPool(cfg.Proxies)
	opener := engine.NewOpener(engine.NewChromeLauncher(), engine.OpenerOptions{
		Launch: engine.LaunchOptions{
			ChromePath: cfg.ChromePath,
			Headless:   cfg.Headless,
			UserAgent:  cfg.UserAgent,
		},
		MaxSessions:     cfg.MaxSessions,
		AcquireTimeout:  cfg.AcquireTimeout,
		TeardownTimeout: cfg.TeardownTimeout,
		Proxies:         proxies,
	})
	logger.Debug().
		Int("max_sessions", cfg.MaxSessions).
		Int("proxies", proxies.Len()).
		Msg("Session opener initialized")

	hosts := ratelimit.NewKeyLimiter(cfg.HostRateLimitRPS, cfg.HostRateBurst)
	opts := pipeline.Options{
		SessionTimeout: cfg.SessionTimeout,
		Store:          store,
		Hosts:          hosts,
	}

	exportSettings := pipeline.DefaultExportSettings(cfg.ExportBaseURL)
	exportSettings.MaxWait = cfg.NavigationTimeout
	exportSettings.Readiness.Grace = cfg.ReadinessGrace

	scrapeSettings := pipeline.LinkedInJobs()
	scrapeSettings.MaxWait = cfg.NavigationTimeout
	scrapeSettings.Readiness.Grace = cfg.ReadinessGrace
	scrapeSettings.AuthTarget = cfg.ScrapeAuthTarget
	if cfg.UserAgent != "" {
		scrapeSettings.UserAgent = cfg.UserAgent
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	mpesa := payment.NewMpesa(payment.MpesaConfig{
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		Shortcode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		Env:            cfg.MpesaEnv,
		CallbackURL:    cfg.MpesaCallbackURL,
		PartyB:         cfg.MpesaPartyB,
	}, httpClient)
	card := payment.NewCard(payment.CardConfig{SecretKey: cfg.StripeSecret}, httpClient)
	logger.Debug().
		Str("mpesa_host", mpesa.BaseURL()).
		Bool("stripe", cfg.StripeSecret != "").
		Msg("Payment clients initialized")

	var clients *ratelimit.KeyLimiter
	if cfg.RateLimitRPS > 0 {
		clients = ratelimit.NewKeyLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	ledger := cache.NewMemoryCache[callback.Receipt](cache.Options{
		MaxEntries: cfg.CallbackLedgerMaxLen,
		DefaultTTL: cfg.CallbackRetention,
	})

	app := &Application{
		Config:     cfg,
		Logger:     &logger,
		Opener:     opener,
		AuthStore:  store,
		Hosts:      hosts,
		Clients:    clients,
		HTTPClient: httpClient,
		Exporter:   pipeline.NewExporter(opener, exportSettings, opts),
		Scraper:    pipeline.NewScraper(opener, scrapeSettings, opts),
		Mpesa:      mpesa,
		Card:       card,
		Callbacks:  callback.NewNotifier(ledger, cfg.CallbackRetention),
		ledger:     ledger,
		pruned:     make(chan struct{}),
		startTime:  time.Now(),
	}

	pruneCtx, cancel := context.WithCancel(context.Background())
	app.stopPrune = cancel
	go app.pruneLimiters(pruneCtx, time.Minute)

	logger.Info().Msg("Application initialized successfully")
	return app, nil
}

// setupLogger installs the global zerolog logger and returns it. The same
// logger backs zerolog.Ctx for contexts that carry none.
func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer
	if cfg.JSONLog {
		// JSON logs to stderr
		w = os.Stderr
	} else {
		w = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = os.Stderr
			cw.TimeFormat = time.Kitchen
		})
	}

	log.Logger = log.Output(w).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
	return log.Logger
}

// Handler returns the HTTP API wired to the application's components.
func (a *Application) Handler() http.Handler {
	srv := server.New(server.Deps{
		Exporter:  a.Exporter,
		Scraper:   a.Scraper,
		Mpesa:     a.Mpesa,
		Card:      a.Card,
		Callbacks: a.Callbacks,
		Sessions:  a.Opener,
	}, server.Options{
		Limiter:      a.Clients,
		TrustProxy:   a.Config.TrustProxy,
		MaxBodyBytes: a.Config.MaxBodyBytes,
		Logger:       *a.Logger,
	})
	return srv.Routes()
}

// Close gracefully shuts down the application and all its resources.
//
// Sessions are torn down by the requests that opened them; Close only
// reports how many were still live. Any errors during shutdown are logged
// but do not prevent other shutdown steps.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application")

	if n := a.Opener.Active(); n > 0 {
		a.Logger.Warn().Int("sessions", n).Msg("Shutting down with live browser sessions")
	}

	if a.stopPrune != nil {
		a.stopPrune()
		select {
		case <-a.pruned:
		case <-ctx.Done():
			a.Logger.Warn().Err(ctx.Err()).Msg("Limiter janitor did not stop in time")
		}
	}

	if a.ledger != nil {
		a.ledger.Close()
	}

	// Close HTTP client (connection pooling cleanup)
	if a.HTTPClient != nil {
		a.HTTPClient.CloseIdleConnections()
	}

	a.Logger.Info().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")
	return nil
}

// pruneLimiters drops idle per-host and per-client buckets until ctx ends.
func (a *Application) pruneLimiters(ctx context.Context, every time.Duration) {
	defer close(a.pruned)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hosts := a.Hosts.Prune(limiterIdle)
			clients := 0
			if a.Clients != nil {
				clients = a.Clients.Prune(limiterIdle)
			}
			a.Logger.Debug().Int("hosts", hosts).Int("clients", clients).Msg("Rate limit buckets pruned")
		}
	}
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
