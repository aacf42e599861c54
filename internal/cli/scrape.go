package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/law-makers/cvpress/internal/engine/extract"
	"github.com/law-makers/cvpress/internal/pipeline"
	"github.com/law-makers/cvpress/internal/ui"
	"github.com/law-makers/cvpress/internal/utils/output"
)

var (
	scrapeFormat   string
	scrapeURL      string
	scrapeSelector string
	scrapeCompact  bool
	scrapeOutput   string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape job listings as JSON",
	Long: `Opens the LinkedIn jobs search in a fresh headless browser, waits for the
result list and prints one record per job card.

A stored "linkedin" auth state is injected before navigation when present;
see "cvpress login" and "cvpress sessions import".`,
	Example: `  # Default LinkedIn search, plain text records
  $ cvpress scrape

  # Markdown records from another listing page
  $ cvpress scrape --url=https://example.com/jobs --selector="li.job" --format=markdown

  # Save as CSV
  $ cvpress scrape -o jobs.csv`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVarP(&scrapeFormat, "format", "f", "text", "Record content: text, markdown, html")
	scrapeCmd.Flags().StringVar(&scrapeURL, "url", "", "Page to scrape instead of the LinkedIn search")
	scrapeCmd.Flags().StringVarP(&scrapeSelector, "selector", "s", "", "CSS selector for one record")
	scrapeCmd.Flags().BoolVar(&scrapeCompact, "compact", false, "Print JSON on one line")
	scrapeCmd.Flags().StringVarP(&scrapeOutput, "output", "o", "", "Write records to a file (.json, .csv, .md)")
}

func runScrape(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	format, err := extract.ParseFormat(scrapeFormat)
	if err != nil {
		return err
	}

	target := scrapeURL
	if target == "" {
		target = a.Scraper.Settings().URL
	}
	stop := spinner(cmd.ErrOrStderr(), "Scraping "+target, a.Config.Quiet)
	records, err := a.Scraper.Scrape(cmd.Context(), pipeline.ScrapeOptions{
		Format:   format,
		URL:      scrapeURL,
		Selector: scrapeSelector,
	})
	stop()
	if err != nil {
		return describe(err)
	}

	if scrapeOutput == "" {
		if err := output.WriteJSON(cmd.OutOrStdout(), records, !scrapeCompact); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
		return nil
	}

	if err := output.Save(scrapeOutput, records); err != nil {
		return err
	}
	if !a.Config.Quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
			ui.Success("✓ Saved"), ui.Bold(scrapeOutput),
			ui.ColorDim+fmt.Sprintf("(%d records)", len(records))+ui.ColorReset)
	}
	return nil
}
