package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool
	Quiet    bool

	// HTTP server
	Host           string
	Port           int
	TrustProxy     bool
	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64

	// Browser sessions
	ChromePath        string
	Headless          bool
	UserAgent         string
	Proxies           []string
	MaxSessions       int
	AcquireTimeout    time.Duration
	TeardownTimeout   time.Duration
	SessionTimeout    time.Duration
	NavigationTimeout time.Duration
	ReadinessGrace    time.Duration
	HostRateLimitRPS  float64
	HostRateBurst     int

	// Export and scrape targets
	ExportBaseURL    string
	ScrapeAuthTarget string

	// Auth state storage
	AuthStore string
	AuthDir   string

	// Payments
	HTTPTimeout          time.Duration
	StripeSecret         string
	MpesaConsumerKey     string
	MpesaConsumerSecret  string
	MpesaShortcode       string
	MpesaPasskey         string
	MpesaEnv             string
	MpesaCallbackURL     string
	MpesaPartyB          string
	CallbackRetention    time.Duration
	CallbackLedgerMaxLen int
}

// Defaults returns a Config holding every default value.
func Defaults() *Config {
	return &Config{
		LogLevel:             DefaultLogLevel,
		JSONLog:              DefaultJSONLog,
		Host:                 DefaultHost,
		Port:                 DefaultPort,
		RateLimitRPS:         DefaultRateLimitRPS,
		RateLimitBurst:       DefaultRateLimitBurst,
		MaxBodyBytes:         DefaultMaxBodyBytes,
		Headless:             DefaultBrowserHeadless,
		MaxSessions:          DefaultMaxSessions,
		AcquireTimeout:       DefaultAcquireTimeout,
		TeardownTimeout:      DefaultTeardownTimeout,
		SessionTimeout:       DefaultSessionTimeout,
		NavigationTimeout:    DefaultNavigationTimeout,
		ReadinessGrace:       DefaultReadinessGrace,
		HostRateLimitRPS:     DefaultHostRateLimitRPS,
		HostRateBurst:        DefaultHostRateBurst,
		ExportBaseURL:        DefaultExportBaseURL,
		ScrapeAuthTarget:     DefaultScrapeAuth,
		AuthStore:            DefaultAuthStore,
		HTTPTimeout:          DefaultHTTPTimeout,
		MpesaEnv:             DefaultMpesaEnv,
		MpesaCallbackURL:     DefaultMpesaCallbackURL,
		MpesaPartyB:          DefaultMpesaPartyB,
		CallbackRetention:    DefaultCallbackRetention,
		CallbackLedgerMaxLen: DefaultCallbackEntries,
	}
}

// Load builds a Config from defaults, the dotenv file, environment variables
// and CLI flags, later sources winning. Caller should pass the executing
// *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	envFile := DefaultEnvFile
	if cmd != nil {
		if f := cmd.Flags().Lookup("env-file"); f != nil && f.Value.String() != "" {
			envFile = f.Value.String()
		}
	}
	if err := loadDotenv(envFile); err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if cmd != nil {
		if err := applyFlags(cfg, cmd); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadDotenv reads path into the environment without overriding variables
// already set. A missing file is not an error.
func loadDotenv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	if v, ok := r.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (r *envReader) integer(key string, dst *int) {
	if v, ok := r.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (r *envReader) float(key string, dst *float64) {
	if v, ok := r.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	if v, ok := r.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

func (r *envReader) list(key string, dst *[]string) {
	if v, ok := r.get(key); ok {
		*dst = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func applyEnv(cfg *Config, lookup lookupFunc) error {
	r := &envReader{lookup: lookup}

	r.str("CVPRESS_LOG_LEVEL", &cfg.LogLevel)
	r.boolean("CVPRESS_JSON_LOG", &cfg.JSONLog)

	r.str("CVPRESS_HOST", &cfg.Host)
	r.integer("PORT", &cfg.Port)
	r.boolean("CVPRESS_TRUST_PROXY", &cfg.TrustProxy)
	r.float("CVPRESS_RATE_LIMIT_RPS", &cfg.RateLimitRPS)
	r.integer("CVPRESS_RATE_LIMIT_BURST", &cfg.RateLimitBurst)

	r.str("CVPRESS_CHROME_PATH", &cfg.ChromePath)
	r.boolean("CVPRESS_HEADLESS", &cfg.Headless)
	r.str("CVPRESS_USER_AGENT", &cfg.UserAgent)
	r.list("CVPRESS_PROXIES", &cfg.Proxies)
	r.integer("CVPRESS_MAX_SESSIONS", &cfg.MaxSessions)
	r.duration("CVPRESS_ACQUIRE_TIMEOUT", &cfg.AcquireTimeout)
	r.duration("CVPRESS_TEARDOWN_TIMEOUT", &cfg.TeardownTimeout)
	r.duration("CVPRESS_SESSION_TIMEOUT", &cfg.SessionTimeout)
	r.duration("CVPRESS_NAVIGATION_TIMEOUT", &cfg.NavigationTimeout)
	r.duration("CVPRESS_READINESS_GRACE", &cfg.ReadinessGrace)
	r.float("CVPRESS_HOST_RATE_LIMIT_RPS", &cfg.HostRateLimitRPS)

	r.str("CVPRESS_EXPORT_BASE_URL", &cfg.ExportBaseURL)
	r.str("CVPRESS_SCRAPE_AUTH", &cfg.ScrapeAuthTarget)
	r.str("CVPRESS_AUTH_STORE", &cfg.AuthStore)
	r.str("CVPRESS_AUTH_DIR", &cfg.AuthDir)

	r.duration("CVPRESS_HTTP_TIMEOUT", &cfg.HTTPTimeout)
	r.str("STRIPE_SECRET", &cfg.StripeSecret)
	r.str("MPESA_CONSUMER_KEY", &cfg.MpesaConsumerKey)
	r.str("MPESA_CONSUMER_SECRET", &cfg.MpesaConsumerSecret)
	r.str("MPESA_SHORTCODE", &cfg.MpesaShortcode)
	r.str("MPESA_PASSKEY", &cfg.MpesaPasskey)
	r.str("MPESA_ENV", &cfg.MpesaEnv)
	r.str("MPESA_CALLBACK_URL", &cfg.MpesaCallbackURL)
	r.str("MPESA_PARTY_B", &cfg.MpesaPartyB)
	r.duration("CVPRESS_CALLBACK_RETENTION", &cfg.CallbackRetention)

	return errors.Join(r.errs...)
}

// applyFlags copies flags the user set explicitly over cfg.
func applyFlags(cfg *Config, cmd *cobra.Command) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if changed("verbose") {
		if v, _ := flags.GetBool("verbose"); v {
			cfg.LogLevel = "debug"
		}
	}
	if changed("quiet") {
		cfg.Quiet, _ = flags.GetBool("quiet")
		if cfg.Quiet {
			cfg.LogLevel = "error"
		}
	}
	if changed("json") {
		cfg.JSONLog, _ = flags.GetBool("json")
	}
	if changed("user-agent") {
		cfg.UserAgent, _ = flags.GetString("user-agent")
	}
	if changed("proxy") {
		v, _ := flags.GetString("proxy")
		cfg.Proxies = splitList(v)
	}
	if changed("chrome-path") {
		cfg.ChromePath, _ = flags.GetString("chrome-path")
	}
	if changed("headless") {
		cfg.Headless, _ = flags.GetBool("headless")
	}
	if changed("max-sessions") {
		var err error
		cfg.MaxSessions, err = flags.GetInt("max-sessions")
		collect(err)
	}
	if changed("timeout") {
		var err error
		cfg.SessionTimeout, err = flags.GetDuration("timeout")
		collect(err)
	}
	if changed("auth-store") {
		cfg.AuthStore, _ = flags.GetString("auth-store")
	}
	if changed("auth-dir") {
		cfg.AuthDir, _ = flags.GetString("auth-dir")
	}
	if changed("export-base-url") {
		cfg.ExportBaseURL, _ = flags.GetString("export-base-url")
	}
	if changed("port") {
		var err error
		cfg.Port, err = flags.GetInt("port")
		collect(err)
	}
	if changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if changed("rate-limit") {
		var err error
		cfg.RateLimitRPS, err = flags.GetFloat64("rate-limit")
		collect(err)
	}
	if changed("trust-proxy") {
		cfg.TrustProxy, _ = flags.GetBool("trust-proxy")
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
