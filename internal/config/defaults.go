package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel = "info"
	DefaultJSONLog  = false
	DefaultEnvFile  = ".env"

	DefaultPort           = 8080
	DefaultHost           = "0.0.0.0"
	DefaultRateLimitRPS   = 0.5
	DefaultRateLimitBurst = 5
	DefaultMaxBodyBytes   = 1 << 20

	DefaultMaxSessions       = 4
	DefaultMaxMaxSessions    = 64
	DefaultBrowserHeadless   = true
	DefaultAcquireTimeout    = 10 * time.Second
	DefaultTeardownTimeout   = 10 * time.Second
	DefaultSessionTimeout    = 2 * time.Minute
	DefaultNavigationTimeout = 60 * time.Second
	DefaultReadinessGrace    = 3 * time.Second
	DefaultHostRateLimitRPS  = 1.0
	DefaultHostRateBurst     = 2

	DefaultExportBaseURL = "http://localhost:3000"
	DefaultAuthStore     = "auto"
	DefaultScrapeAuth    = "linkedin"

	DefaultHTTPTimeout       = 30 * time.Second
	DefaultMpesaEnv          = "sandbox"
	DefaultMpesaCallbackURL  = "https://anchormen.onrender.com/api/mpesa/callback"
	DefaultMpesaPartyB       = "6444134"
	DefaultCallbackRetention = 24 * time.Hour
	DefaultCallbackEntries   = 10000
)
