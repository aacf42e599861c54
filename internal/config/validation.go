package config

import (
	"errors"
	"fmt"

	"github.com/law-makers/cvpress/internal/auth"
	urlutil "github.com/law-makers/cvpress/internal/utils/url"
)

func validate(c *Config) error {
	var errs []error
	positive := func(name string, v interface{ Seconds() float64 }) {
		if v.Seconds() <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", name))
		}
	}

	positive("acquire timeout", c.AcquireTimeout)
	positive("teardown timeout", c.TeardownTimeout)
	positive("session timeout", c.SessionTimeout)
	positive("navigation timeout", c.NavigationTimeout)
	positive("http timeout", c.HTTPTimeout)
	positive("callback retention", c.CallbackRetention)

	if c.ReadinessGrace < 0 {
		errs = append(errs, fmt.Errorf("readiness grace must be >= 0"))
	}
	if c.MaxSessions < 0 || c.MaxSessions > DefaultMaxMaxSessions {
		errs = append(errs, fmt.Errorf("max sessions must be between 0 (unbounded) and %d", DefaultMaxMaxSessions))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535"))
	}
	if c.RateLimitRPS < 0 || c.HostRateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("rate limits must be >= 0"))
	}
	if c.ExportBaseURL != "" {
		if err := urlutil.ValidateURL(c.ExportBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("export base URL: %w", err))
		}
	}
	switch c.AuthStore {
	case auth.StoreAuto, auth.StoreFile, auth.StoreKeyring:
	default:
		errs = append(errs, fmt.Errorf("auth store must be one of auto, file, keyring"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level must be one of debug, info, warn, error"))
	}

	return errors.Join(errs...)
}
