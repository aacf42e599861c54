package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/cvpress/internal/engine"
	"github.com/law-makers/cvpress/internal/pipeline"
	"github.com/law-makers/cvpress/internal/ui"
)

var (
	exportOutput    string
	exportURL       string
	exportFormat    string
	exportLandscape bool
)

var exportCmd = &cobra.Command{
	Use:   "export [<resume-name> <resume-id> <language>]",
	Short: "Print a resume page to PDF",
	Long: `Opens the resume frontend in a fresh headless browser, waits for the resume
to render and prints it to a PDF file.

The page address is <export-base-url>/export/<name>/<id>/<language> unless
--url points somewhere else.`,
	Example: `  # Export from the configured frontend
  $ cvpress export "Jane Doe" 42 en

  # Print any page as US letter landscape
  $ cvpress export --url=https://example.com/cv --format=letter --landscape -o cv.pdf`,
	Args: func(cmd *cobra.Command, args []string) error {
		if exportURL != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(3)(cmd, args)
	},
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default <resume-name>.pdf)")
	exportCmd.Flags().StringVar(&exportURL, "url", "", "Print this page instead of the frontend export route")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Paper size: a3, a4, a5, letter, legal, tabloid")
	exportCmd.Flags().BoolVar(&exportLandscape, "landscape", false, "Landscape orientation")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	req := pipeline.ExportRequest{
		URL:       exportURL,
		Format:    exportFormat,
		Landscape: exportLandscape,
	}
	if len(args) == 3 {
		req.ResumeName, req.ResumeID, req.Language = args[0], args[1], args[2]
	}

	addr, err := a.Exporter.Address(req)
	if err != nil {
		return err
	}
	log.Debug().Str("url", addr).Msg("Exporting resume")

	stop := spinner(cmd.ErrOrStderr(), "Rendering "+addr, a.Config.Quiet)
	artifact, err := a.Exporter.Export(cmd.Context(), req)
	stop()
	if err != nil {
		return describe(err)
	}

	out := exportOutput
	if out == "" {
		out = artifact.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(out, artifact.Data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	if !a.Config.Quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
			ui.Success("✓ Saved"), ui.Bold(out),
			ui.ColorDim+fmt.Sprintf("(%s, %d bytes)", artifact.Format.Name, artifact.Size())+ui.ColorReset)
	}
	return nil
}

// describe adds an operator hint to engine errors the CLI commonly hits.
func describe(err error) error {
	switch engine.CodeOf(err) {
	case engine.ErrCodeLaunch:
		return fmt.Errorf("%w\n  hint: install Chrome/Chromium or pass --chrome-path", err)
	case engine.ErrCodeNavigationTimeout:
		return fmt.Errorf("%w\n  hint: the page never became ready; check the address or raise --timeout", err)
	case engine.ErrCodeBusy:
		return fmt.Errorf("%w\n  hint: all browser slots are in use; raise --max-sessions", err)
	}
	return err
}
