package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")
	cmd.PersistentFlags().Bool("json", false, "Log in JSON format")
	cmd.PersistentFlags().String("env-file", DefaultEnvFile, "Dotenv file to load (missing file is ignored)")
	cmd.PersistentFlags().String("proxy", "", "Comma-separated HTTP/SOCKS5 proxies rotated across browsers")
	cmd.PersistentFlags().Duration("timeout", DefaultSessionTimeout, "Hard timeout for one browser session")
	cmd.PersistentFlags().String("user-agent", "", "Custom user agent string")
	cmd.PersistentFlags().String("chrome-path", "", "Path to Chrome/Chromium (auto-detected if empty)")
	cmd.PersistentFlags().Bool("headless", DefaultBrowserHeadless, "Run browsers headless")
	cmd.PersistentFlags().Int("max-sessions", DefaultMaxSessions, "Concurrent browser sessions (0 = unbounded)")
	cmd.PersistentFlags().String("auth-store", DefaultAuthStore, "Auth state storage: auto, file, keyring")
	cmd.PersistentFlags().String("auth-dir", "", "Directory for file-based auth state (default ~/.cvpress/sessions)")
	cmd.PersistentFlags().String("export-base-url", DefaultExportBaseURL, "Origin of the resume frontend")
}

// RegisterServeFlags registers flags that only apply to the HTTP server.
func RegisterServeFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.Flags().IntP("port", "p", DefaultPort, "Port to listen on (env PORT)")
	cmd.Flags().String("host", DefaultHost, "Interface to listen on")
	cmd.Flags().Float64("rate-limit", DefaultRateLimitRPS, "Export/scrape requests per second per client (0 = unlimited)")
	cmd.Flags().Bool("trust-proxy", false, "Take client addresses from X-Forwarded-For")
}
