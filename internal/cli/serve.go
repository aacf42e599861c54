package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/cvpress/internal/config"
)

// drainTimeout bounds how long in-flight requests may finish on shutdown.
const drainTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the resume export, job scraping and payment endpoints.

Credentials come from the environment or a .env file:
STRIPE_SECRET, MPESA_CONSUMER_KEY, MPESA_CONSUMER_SECRET, MPESA_SHORTCODE,
MPESA_PASSKEY, MPESA_ENV. The port comes from PORT or --port.`,
	Example: `  # Listen on 8080 with at most two browsers at a time
  $ cvpress serve --max-sessions=2

  # Behind a reverse proxy
  $ cvpress serve --port=3001 --trust-proxy`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	config.RegisterServeFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	cfg := a.Config

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A request may hold a browser for the whole session budget.
		WriteTimeout: cfg.SessionTimeout + cfg.TeardownTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", ln.Addr().String()).
			Int("max_sessions", cfg.MaxSessions).
			Str("export_base_url", cfg.ExportBaseURL).
			Msg("Server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-cmd.Context().Done():
	}

	log.Warn().Msg("Shutting down server gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-errCh

	log.Info().Dur("uptime", a.Uptime()).Msg("Server stopped cleanly")
	return nil
}
