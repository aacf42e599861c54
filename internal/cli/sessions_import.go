// internal/cli/sessions_import.go
package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/law-makers/cvpress/internal/auth"
	"github.com/law-makers/cvpress/internal/ui"
)

var (
	importURL     string
	importFormat  string
	importFile    string
	importHeaders []string
)

// sessionsImportCmd represents the sessions import command
var sessionsImportCmd = &cobra.Command{
	Use:   "import <target>",
	Short: "Import browser cookies as the auth state for a target",
	Long: `Import cookies exported from your own browser to create an auth state.

This is useful in headless environments (Codespaces, dev containers) where the
interactive login browser cannot be shown.

Steps:
1. Open the website in your regular browser and log in
2. Export the cookies with a cookie extension (JSON) or as cookies.txt
3. Pipe the export into this command`,
	Example: `  # Import from a JSON export (array or full state)
  cvpress sessions import linkedin --url=https://www.linkedin.com < cookies.json

  # Import from Netscape/curl format file
  cvpress sessions import linkedin --format=netscape --file=cookies.txt

  # Type cookies by hand
  cvpress sessions import resume-app --url=https://cv.example.com --format=interactive`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsImport,
}

func init() {
	sessionsCmd.AddCommand(sessionsImportCmd)

	sessionsImportCmd.Flags().StringVar(&importURL, "url", "", "Website URL for this session")
	sessionsImportCmd.Flags().StringVar(&importFormat, "format", auth.FormatJSON, "Import format: json, netscape, interactive")
	sessionsImportCmd.Flags().StringVar(&importFile, "file", "", "Read cookies from this file instead of stdin")
	sessionsImportCmd.Flags().StringArrayVarP(&importHeaders, "header", "H", nil, "Extra header replayed on every navigation (Key: Value)")
}

func runSessionsImport(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	target := args[0]
	out := cmd.OutOrStdout()

	var in io.Reader = os.Stdin
	if importFile != "" {
		f, err := os.Open(importFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	headers, err := auth.ParseHeaders(importHeaders)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n🔐 Import Session: %s\n%s\n\n", target, rule)

	var cookies []auth.Cookie
	if importFormat == "interactive" {
		cookies, err = promptCookies(in, out, defaultDomain(importURL))
	} else {
		cookies, err = auth.Import(in, importFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to import cookies: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies imported")
	}

	state := auth.NewState(target, importURL, cookies, headers)
	if err := a.AuthStore.Save(target, state); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Fprintf(out, "\n%s\n", ui.Success(fmt.Sprintf("✅ Session '%s' created successfully!", target)))
	fmt.Fprintf(out, "   Cookies: %d\n", len(cookies))
	if !state.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "   Expires: %s\n", state.ExpiresAt.Format(time.RFC1123))
	}
	fmt.Fprintln(out)
	return nil
}

// defaultDomain returns ".host" for rawURL, or "" when it has no host.
func defaultDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return "." + strings.TrimPrefix(u.Hostname(), "www.")
}

// promptCookies reads name/value/domain triples until an empty name.
func promptCookies(in io.Reader, out io.Writer, domain string) ([]auth.Cookie, error) {
	fmt.Fprintln(out, "📋 Cookie Import Guide:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "1. Open the website in your browser and login")
	fmt.Fprintln(out, "2. Press F12 to open DevTools")
	fmt.Fprintln(out, "3. Go to: Application → Storage → Cookies")
	fmt.Fprintln(out, "4. For each important cookie, copy the Name and Value")

	scanner := bufio.NewScanner(in)
	ask := func(prompt string) (string, bool) {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	var cookies []auth.Cookie
	for {
		fmt.Fprintf(out, "\n%s\n", rule)
		name, ok := ask("\nCookie Name (or press Enter to finish): ")
		if !ok || name == "" {
			break
		}
		value, ok := ask("Cookie Value: ")
		if !ok {
			break
		}
		if value == "" {
			fmt.Fprintln(out, ui.Warn("⚠️  Skipping cookie with empty value"))
			continue
		}
		cookieDomain, ok := ask(fmt.Sprintf("Domain [%s]: ", domain))
		if !ok {
			break
		}
		if cookieDomain == "" {
			cookieDomain = domain
		}

		cookies = append(cookies, auth.Cookie{
			Name:     name,
			Value:    value,
			Domain:   cookieDomain,
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
		})
		fmt.Fprintf(out, "✅ Added: %s (domain: %s)\n", name, cookieDomain)
	}

	return cookies, scanner.Err()
}
