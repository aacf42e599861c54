// internal/cli/login.go
package cli

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/cvpress/internal/auth"
	"github.com/law-makers/cvpress/internal/pipeline"
	"github.com/law-makers/cvpress/internal/ui"
)

var (
	loginURL            string
	waitSelector        string
	loginTimeout        time.Duration
	loginHeaders        []string
	remoteDebuggingPort int
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login <target>",
	Short: "Log in by hand and store the session for a target site",
	Long: `Opens a visible browser window for you to log in manually. Once done, the
cookies are captured and stored as the auth state for <target>.

Exports and scrapes inject the stored state into their browser before the
first navigation, so pages render as the logged-in user.

For headless environments (dev containers), use --remote-debug to reach the
browser from a forwarded port, or import cookies with "cvpress sessions import".`,
	Example: `  # Capture a LinkedIn session used by "cvpress scrape"
  $ cvpress login linkedin --wait="#global-nav"

  # Login in dev container with remote debugging
  $ cvpress login resume-app --url=https://cv.example.com/login --remote-debug=9222

  # Login without waiting for specific element (manual confirmation)
  $ cvpress login resume-app --url=https://cv.example.com/login`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&loginURL, "url", "", "Login page (default: the LinkedIn login page for target linkedin)")
	loginCmd.Flags().StringVarP(&waitSelector, "wait", "w", "", "CSS selector to wait for after login (e.g., '#global-nav')")
	loginCmd.Flags().DurationVar(&loginTimeout, "login-timeout", 5*time.Minute, "Timeout for login process")
	loginCmd.Flags().StringArrayVarP(&loginHeaders, "header", "H", nil, "Extra header replayed on every navigation (Key: Value)")
	loginCmd.Flags().IntVar(&remoteDebuggingPort, "remote-debug", 0, "Enable Chrome remote debugging on this port (e.g., 9222)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	target := args[0]

	url := loginURL
	if url == "" {
		if target != a.Config.ScrapeAuthTarget {
			return fmt.Errorf("--url is required for target %q", target)
		}
		url = pipeline.LinkedInLoginURL
	}

	headers, err := auth.ParseHeaders(loginHeaders)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s\n", ui.Bold("🔐 Interactive Login"))
	fmt.Fprintf(out, "%s\n\n", ui.ColorDim+"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"+ui.ColorReset)
	fmt.Fprintf(out, "  %s %s\n", ui.Bold("Target:"), ui.ColorWhite+target+ui.ColorReset)
	fmt.Fprintf(out, "  %s %s\n", ui.Bold("URL:"), ui.ColorWhite+url+ui.ColorReset)
	if waitSelector != "" {
		fmt.Fprintf(out, "  %s %s\n", ui.Bold("Waiting:"), ui.ColorWhite+waitSelector+ui.ColorReset)
	}
	fmt.Fprintf(out, "  %s %s\n\n", ui.Bold("Timeout:"), ui.ColorWhite+loginTimeout.String()+ui.ColorReset)

	stdin := bufio.NewReader(os.Stdin)
	state, err := auth.InteractiveLogin(cmd.Context(), auth.LoginOptions{
		Target:              target,
		URL:                 url,
		ChromePath:          a.Config.ChromePath,
		WaitSelector:        waitSelector,
		Timeout:             loginTimeout,
		Headers:             headers,
		RemoteDebuggingPort: remoteDebuggingPort,
		Confirm: func() error {
			_, err := stdin.ReadString('\n')
			return err
		},
		Out: out,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := a.AuthStore.Save(target, state); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	log.Info().Str("target", target).Int("cookies", len(state.Cookies)).Msg("Auth state saved")

	fmt.Fprintln(out, ui.Success("\n✓ Session saved successfully!"))
	if !state.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "Session expires: %s\n", state.ExpiresAt.Format(time.RFC1123))
	}
	fmt.Fprintln(out)
	return nil
}
