// internal/cli/sessions.go
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/law-makers/cvpress/internal/auth"
	"github.com/law-makers/cvpress/internal/ui"
)

var deleteYes bool

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored auth states",
	Long: `List, view, import and delete stored auth states.

An auth state holds the cookies and headers captured for one target site.
It is stored in the OS keyring, or under ~/.cvpress/sessions when no keyring
is available (see --auth-store).`,
	Example: `  # List all stored targets
  $ cvpress sessions list

  # View details of a specific target
  $ cvpress sessions view linkedin

  # Delete a target without prompting
  $ cvpress sessions delete linkedin --yes`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored auth states",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsViewCmd = &cobra.Command{
	Use:   "view <target>",
	Short: "View details of a stored auth state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsView,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <target>",
	Short: "Delete a stored auth state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsViewCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)

	sessionsDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Delete without confirmation")
}

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	return listStates(cmd.OutOrStdout(), a.AuthStore, time.Now())
}

func listStates(out io.Writer, store auth.Store, now time.Time) error {
	targets, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(targets) == 0 {
		fmt.Fprintln(out, "\nNo stored sessions found.")
		fmt.Fprintln(out, "\nCreate one with:")
		fmt.Fprintln(out, "  cvpress login <target> --url=<login-url>")
		fmt.Fprintln(out, "  cvpress sessions import <target> --url=<url> < cookies.json")
		fmt.Fprintln(out)
		return nil
	}

	fmt.Fprintf(out, "\n📋 Stored Sessions (%d)\n%s\n\n", len(targets), rule)
	for i, target := range targets {
		fmt.Fprintf(out, "%d. %s\n", i+1, ui.Bold(target))

		state, err := store.Load(target)
		if err != nil {
			fmt.Fprintf(out, "   %s\n", ui.Error("⚠️  Error loading: "+err.Error()))
			continue
		}
		if state.URL != "" {
			fmt.Fprintf(out, "   URL: %s\n", state.URL)
		}
		fmt.Fprintf(out, "   Cookies: %d\n", len(state.Cookies))
		fmt.Fprintf(out, "   Created: %s\n", state.CreatedAt.Format(time.RFC1123))
		fmt.Fprintf(out, "   %s\n", expiryLine(state, now))

		if i < len(targets)-1 {
			fmt.Fprintln(out)
		}
	}
	fmt.Fprintln(out)
	return nil
}

func expiryLine(state auth.AuthState, now time.Time) string {
	switch {
	case state.ExpiresAt.IsZero():
		return "Expires: with the browser session"
	case state.Expired(now):
		return ui.Warn(fmt.Sprintf("Status: ⚠️  Expired (%s ago)", now.Sub(state.ExpiresAt).Round(time.Hour)))
	default:
		return fmt.Sprintf("Expires: %s (in %s)", state.ExpiresAt.Format(time.RFC1123), state.ExpiresAt.Sub(now).Round(time.Hour))
	}
}

func runSessionsView(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	return viewState(cmd.OutOrStdout(), a.AuthStore, args[0], time.Now())
}

func viewState(out io.Writer, store auth.Store, target string, now time.Time) error {
	state, err := store.Load(target)
	if errors.Is(err, auth.ErrNotFound) {
		return fmt.Errorf("no session stored for %q", target)
	}
	if err != nil {
		return fmt.Errorf("failed to load session %q: %w", target, err)
	}

	fmt.Fprintf(out, "\n🔍 Session Details: %s\n%s\n\n", target, rule)
	fmt.Fprintf(out, "Target:   %s\n", state.Target)
	if state.URL != "" {
		fmt.Fprintf(out, "URL:      %s\n", state.URL)
	}
	fmt.Fprintf(out, "Created:  %s\n", state.CreatedAt.Format(time.RFC1123))
	fmt.Fprintf(out, "%s\n", expiryLine(state, now))

	fmt.Fprintf(out, "\nCookies (%d):\n", len(state.Cookies))
	for i, c := range state.Cookies {
		if i >= 5 {
			fmt.Fprintf(out, "  ... and %d more\n", len(state.Cookies)-5)
			break
		}
		fmt.Fprintf(out, "  • %s (domain: %s)\n", c.Name, c.Domain)
	}

	if len(state.Headers) > 0 {
		keys := make([]string, 0, len(state.Headers))
		for k := range state.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(out, "\nCustom Headers (%d):\n", len(keys))
		for _, k := range keys {
			// Header values are usually credentials
			fmt.Fprintf(out, "  • %s: %s\n", k, mask(state.Headers[k]))
		}
	}

	fmt.Fprintln(out)
	return nil
}

func mask(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-4)
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	target := args[0]
	out := cmd.OutOrStdout()

	if !deleteYes {
		fmt.Fprint(out, ui.Warn(fmt.Sprintf("\n⚠️  Delete session '%s'? [y/N]: ", target)))
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := a.AuthStore.Delete(target); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Fprintf(out, "\n%s\n\n", ui.Success(fmt.Sprintf("✓ Session '%s' deleted.", target)))
	return nil
}
