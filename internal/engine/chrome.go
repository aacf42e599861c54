// internal/engine/chrome.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/law-makers/cvpress/internal/auth"
	"github.com/rs/zerolog/log"
)

// FindChrome locates a Chrome/Chromium executable. An explicit path wins,
// then CHROME_PATH, then the usual install locations and PATH.
func FindChrome(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if path := os.Getenv("CHROME_PATH"); path != "" {
		if isExecutable(path) {
			log.Debug().Str("path", path).Msg("Chrome found via CHROME_PATH environment variable")
			return path
		}
		log.Warn().Str("path", path).Msg("CHROME_PATH set but not executable")
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
		if home := os.Getenv("HOME"); home != "" {
			candidates = append(candidates,
				filepath.Join(home, "Applications/Google Chrome.app/Contents/MacOS/Google Chrome"),
			)
		}

	case "windows":
		for _, base := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)"), os.Getenv("LocalAppData")} {
			if base != "" {
				candidates = append(candidates,
					filepath.Join(base, "Google\\Chrome\\Application\\chrome.exe"),
					filepath.Join(base, "Chromium\\Application\\chrome.exe"),
					filepath.Join(base, "Microsoft\\Edge\\Application\\msedge.exe"),
				)
			}
		}

	case "linux":
		candidates = []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
			"/headless-shell/headless-shell",
		}
	}

	for _, path := range candidates {
		if isExecutable(path) {
			log.Debug().Str("path", path).Str("os", runtime.GOOS).Msg("Chrome found at standard location")
			return path
		}
	}

	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser", "chrome", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			log.Debug().Str("path", path).Msg("Chrome found in PATH")
			return path
		}
	}

	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return !info.IsDir()
	}
	return !info.IsDir() && info.Mode()&0111 != 0
}

// ChromeLauncher launches one headless Chrome process per session.
type ChromeLauncher struct{}

// NewChromeLauncher returns the production launcher.
func NewChromeLauncher() *ChromeLauncher {
	return &ChromeLauncher{}
}

// Launch starts a browser and waits for its first tab. ctx bounds the
// start-up only; the process is tied to a context of its own.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	chromePath := FindChrome(opts.ChromePath)
	if chromePath == "" {
		return nil, NewEngineError(ErrCodeLaunch, "no browser executable", ErrBrowserNotFound)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	width, height := opts.WindowWidth, opts.WindowHeight
	if width == 0 || height == 0 {
		width, height = 1280, 1696
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(chromePath),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(width, height),
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}

	// The process must outlive the request context; only Close ends it.
	base := Detach(ctx)
	allocCtx, allocCancel := chromedp.NewExecAllocator(base, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	p := &chromePage{
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(tabCtx, network.Enable())
	}()

	select {
	case err := <-started:
		if err != nil {
			p.shutdown()
			return nil, NewEngineError(ErrCodeLaunch, "browser failed to start", err).
				WithDetail("chrome_path", chromePath)
		}
	case <-ctx.Done():
		p.shutdown()
		<-started
		return nil, NewEngineError(ErrCodeLaunch, "browser start-up abandoned", ctx.Err())
	}

	log.Debug().Str("chrome_path", chromePath).Str("proxy", opts.Proxy).Msg("Browser launched")
	return p, nil
}

type chromePage struct {
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	once        sync.Once
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && runCtx.Err() != nil && ctx.Err() != nil {
		// Report the caller's deadline rather than chromedp's wrapping of it.
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (p *chromePage) SetCookies(ctx context.Context, state auth.AuthState) error {
	params := state.CookieParams(time.Now())
	if len(params) == 0 {
		return nil
	}
	return p.run(ctx, network.SetCookies(params))
}

func (p *chromePage) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	h := make(network.Headers, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return p.run(ctx, network.SetExtraHTTPHeaders(h))
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) PrintToPDF(ctx context.Context, opts PDFOptions) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, _, err = page.PrintToPDF().
			WithPrintBackground(opts.PrintBackground).
			WithLandscape(opts.Landscape).
			WithPaperWidth(opts.PaperWidth).
			WithPaperHeight(opts.PaperHeight).
			Do(ctx)
		return err
	}))
	return buf, err
}

// Close shuts the browser down, waiting at most until ctx is done.
func (p *chromePage) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.shutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(ErrBrowserNotStopped, ctx.Err())
	}
}

func (p *chromePage) shutdown() {
	p.once.Do(func() {
		if err := chromedp.Cancel(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("Graceful browser close failed")
		}
		p.tabCancel()
		p.allocCancel()
	})
}
