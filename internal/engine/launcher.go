// internal/engine/launcher.go
package engine

import (
	"context"

	"github.com/law-makers/cvpress/internal/auth"
)

// DefaultUserAgent is presented by every launched browser unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// LaunchOptions configures one browser process.
type LaunchOptions struct {
	ChromePath   string
	Headless     bool
	UserAgent    string
	Proxy        string
	WindowWidth  int
	WindowHeight int
}

// PDFOptions controls a full-page print. Paper sizes are in inches.
type PDFOptions struct {
	PaperWidth      float64
	PaperHeight     float64
	Landscape       bool
	PrintBackground bool
}

// Launcher starts isolated browser instances. Each Launch returns a page
// owning its own browser process.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// Page is the single tab of a launched browser. The ctx passed to each
// method bounds only that operation; the process lives until Close.
type Page interface {
	SetCookies(ctx context.Context, state auth.AuthState) error
	SetExtraHeaders(ctx context.Context, headers map[string]string) error
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	PrintToPDF(ctx context.Context, opts PDFOptions) ([]byte, error)
	Close(ctx context.Context) error
}
