// internal/cli/root.go
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/law-makers/cvpress/internal/app"
	"github.com/law-makers/cvpress/internal/config"
	"github.com/law-makers/cvpress/internal/ui"
)

// shutdownTimeout bounds Application.Close after a command.
const shutdownTimeout = 15 * time.Second

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cvpress",
	Short: "Resume PDF export, job scraping and payments backend",
	Long: `cvpress drives headless Chrome to print resume pages to PDF and to scrape
job listings, and fronts the M-Pesa and Stripe payment flows of the resume app.

Run "cvpress serve" for the HTTP API, or use export and scrape directly.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// The Application built for the command is closed even when the command fails.
func Execute(ctx context.Context) int {
	cmd, err := rootCmd.ExecuteContextC(ctx)
	if a := GetAppFromCmd(cmd); a != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = a.Close(closeCtx)
		cancel()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Error("Error: "+err.Error()))
		return 1
	}
	return 0
}

func init() {
	// Lazily initialize the application before running commands (avoid starting app for -h/help)
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetAppFromCmd(cmd) != nil {
			return nil
		}

		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}

		if cfg.JSONLog || ui.NoColor() {
			ui.Disable()
		}

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		SetApp(cmd, a)
		return nil
	}

	config.RegisterFlags(rootCmd)

	// Customize help and version flag descriptions
	rootCmd.Flags().BoolP("help", "h", false, "Help for cvpress")
	rootCmd.Flags().Bool("version", false, "Version for cvpress")

	// Disable the default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.SetHelpFunc(customHelpFunc)
	rootCmd.SetUsageFunc(customUsageFunc)
}

// mustApp returns the initialized Application for cmd.
func mustApp(cmd *cobra.Command) (*app.Application, error) {
	a := GetAppFromCmd(cmd)
	if a == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return a, nil
}
