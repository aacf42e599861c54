// internal/auth/login.go
package auth

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// LoginOptions configures the interactive capture of an AuthState
type LoginOptions struct {
	// Target is the name the state is saved under (e.g. "linkedin")
	Target string
	// URL to navigate to for login
	URL string
	// ChromePath overrides browser discovery
	ChromePath string
	// WaitSelector is the CSS selector that proves login finished (e.g. "#global-nav")
	WaitSelector string
	// Timeout for the entire login process
	Timeout time.Duration
	// Headers are stored alongside the cookies and replayed on every navigation
	Headers map[string]string
	// RemoteDebuggingPort enables Chrome DevTools on this port (e.g., 9222)
	RemoteDebuggingPort int
	// Confirm blocks until the user says login is done; used when WaitSelector is empty
	Confirm func() error
	// Out receives operator instructions
	Out io.Writer
}

// InteractiveLogin launches a visible browser, lets the operator log in by
// hand and captures the resulting cookies.
func InteractiveLogin(ctx context.Context, opts LoginOptions) (AuthState, error) {
	if opts.Target == "" {
		return AuthState{}, fmt.Errorf("target name is required")
	}
	if opts.URL == "" {
		return AuthState{}, fmt.Errorf("URL is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	if os.Getenv("DISPLAY") == "" && opts.RemoteDebuggingPort == 0 {
		return AuthState{}, fmt.Errorf("interactive login requires a display server (DISPLAY not set)\n\n" +
			"In headless environments use --remote-debug=9222, or import cookies with:\n" +
			"   cvpress sessions import <target> --url=<url> --format=json < cookies.json")
	}

	log.Info().
		Str("target", opts.Target).
		Str("url", opts.URL).
		Msg("Starting interactive login")

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("log-level", "3"),
		chromedp.WindowSize(1280, 720),
	}
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}
	if opts.RemoteDebuggingPort > 0 {
		allocOpts = append(allocOpts,
			chromedp.Flag("remote-debugging-port", fmt.Sprintf("%d", opts.RemoteDebuggingPort)),
			chromedp.Flag("remote-debugging-address", "0.0.0.0"),
		)
		log.Info().Int("port", opts.RemoteDebuggingPort).Msg("Remote debugging enabled")
		fmt.Fprintf(opts.Out, "\nRemote debugging enabled on port %d\n", opts.RemoteDebuggingPort)
		fmt.Fprintf(opts.Out, "   Open chrome://inspect locally and add target localhost:%d\n", opts.RemoteDebuggingPort)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))
	defer browserCancel()

	fmt.Fprintln(opts.Out, "\nBrowser opened. Please complete the login process manually.")

	if err := chromedp.Run(browserCtx, network.Enable(), chromedp.Navigate(opts.URL)); err != nil {
		return AuthState{}, fmt.Errorf("failed to navigate: %w", err)
	}

	if opts.WaitSelector != "" {
		log.Info().Str("selector", opts.WaitSelector).Msg("Waiting for login completion...")
		fmt.Fprintf(opts.Out, "   Waiting for element: %s\n", opts.WaitSelector)

		if err := chromedp.Run(browserCtx, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery)); err != nil {
			return AuthState{}, fmt.Errorf("login timeout or failed: %w", err)
		}
	} else if opts.Confirm != nil {
		fmt.Fprintln(opts.Out, "\n   Press Enter once you have completed login...")
		if err := opts.Confirm(); err != nil {
			return AuthState{}, err
		}
	}

	var cookies []*network.Cookie
	err := chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return AuthState{}, fmt.Errorf("failed to extract cookies: %w", err)
	}
	if len(cookies) == 0 {
		return AuthState{}, fmt.Errorf("no cookies found - login may have failed")
	}

	log.Info().Int("cookie_count", len(cookies)).Msg("Cookies extracted")

	captured := make([]Cookie, len(cookies))
	for i, c := range cookies {
		captured[i] = Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
	}

	return NewState(opts.Target, opts.URL, captured, opts.Headers), nil
}
