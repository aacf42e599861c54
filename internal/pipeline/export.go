package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/law-makers/cvpress/internal/engine"
	"github.com/law-makers/cvpress/internal/engine/render"
	urlutil "github.com/law-makers/cvpress/internal/utils/url"
)

// ExportSettings describe the resume frontend being exported.
type ExportSettings struct {
	// BaseURL is the frontend origin; pages live under /export/{name}/{id}/{lang}.
	BaseURL         string
	MaxWait         time.Duration
	Readiness       engine.Readiness
	Format          render.PageFormat
	PrintBackground bool
	// AuthTarget names stored auth state to inject, empty for anonymous.
	AuthTarget string
}

// DefaultExportSettings waits for the rendered resume container and lets
// web fonts settle before printing A4.
func DefaultExportSettings(baseURL string) ExportSettings {
	return ExportSettings{
		BaseURL: baseURL,
		MaxWait: 60 * time.Second,
		Readiness: engine.Readiness{
			Selector: "#resumen",
			Grace:    3 * time.Second,
		},
		Format:          render.A4,
		PrintBackground: true,
	}
}

// ExportRequest identifies one resume to export.
type ExportRequest struct {
	ResumeName string
	ResumeID   string
	Language   string
	// URL replaces the derived frontend address. Only trusted callers (the
	// CLI) set it.
	URL string
	// Format is a paper size name; "" uses the settings' format.
	Format    string
	Landscape bool
}

// Exporter renders resume pages to PDF, one isolated session per request.
type Exporter struct {
	runner
	settings ExportSettings
}

// NewExporter returns an Exporter opening sessions through opener.
func NewExporter(opener *engine.Opener, settings ExportSettings, opts Options) *Exporter {
	if settings.Format.Width <= 0 {
		settings.Format = render.A4
	}
	return &Exporter{runner: newRunner(opener, opts), settings: settings}
}

// Address returns the page URL for req.
func (e *Exporter) Address(req ExportRequest) (string, error) {
	if req.URL != "" {
		return req.URL, nil
	}
	if req.ResumeName == "" || req.ResumeID == "" || req.Language == "" {
		return "", engine.NewEngineError(engine.ErrCodeConfiguration, "resumeName, resumeId and language are required", nil)
	}
	if e.settings.BaseURL == "" {
		return "", engine.NewEngineError(engine.ErrCodeConfiguration, "export base URL is not configured", nil)
	}
	addr, err := urlutil.JoinPath(e.settings.BaseURL, "export", req.ResumeName, req.ResumeID, req.Language)
	if err != nil {
		return "", engine.NewEngineError(engine.ErrCodeConfiguration, "invalid export address", err)
	}
	return addr, nil
}

// Export navigates to the resume page, waits for readiness and prints it.
// The artifact is held in memory only.
func (e *Exporter) Export(ctx context.Context, req ExportRequest) (*render.Artifact, error) {
	addr, err := e.Address(req)
	if err != nil {
		return nil, err
	}

	format := e.settings.Format
	if req.Format != "" {
		if format, err = render.ParseFormat(req.Format); err != nil {
			return nil, err
		}
	}

	var artifact *render.Artifact
	err = e.run(ctx, job{
		kind:       "export",
		authTarget: e.settings.AuthTarget,
		target: engine.Target{
			URL:       addr,
			MaxWait:   e.settings.MaxWait,
			Readiness: e.settings.Readiness,
		},
		use: func(ctx context.Context, s *engine.Session) error {
			a, err := render.Render(ctx, s, render.Options{
				Format:          format,
				Landscape:       req.Landscape,
				PrintBackground: e.settings.PrintBackground,
				Filename:        exportFilename(req.ResumeName),
			})
			artifact = a
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func exportFilename(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.':
			return '-'
		}
		return -1
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "resume"
	}
	return clean + ".pdf"
}
