// Package enginetest provides an in-memory Launcher for exercising sessions
// without a browser.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/law-makers/cvpress/internal/auth"
	"github.com/law-makers/cvpress/internal/engine"
)

// Stage names a Page operation where a failure can be injected.
type Stage string

const (
	StageLaunch   Stage = "launch"
	StageCookies  Stage = "cookies"
	StageHeaders  Stage = "headers"
	StageNavigate Stage = "navigate"
	StageWait     Stage = "wait"
	StageHTML     Stage = "html"
	StagePDF      Stage = "pdf"
	StageClose    Stage = "close"
)

// Launcher hands out FakePages. Fields may be set before use only.
type Launcher struct {
	// HTML is returned by every page's HTML call.
	HTML string
	// PDF is returned by every page's PrintToPDF call.
	PDF []byte
	// Fail maps a stage to the error it returns.
	Fail map[Stage]error
	// Hang makes a stage block until its ctx is done.
	Hang map[Stage]bool

	mu       sync.Mutex
	pages    []*Page
	launched atomic.Int64
	live     atomic.Int64
}

// Launch implements engine.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts engine.LaunchOptions) (engine.Page, error) {
	if err := l.stage(ctx, StageLaunch); err != nil {
		return nil, err
	}
	p := &Page{launcher: l, Options: opts}
	l.mu.Lock()
	l.pages = append(l.pages, p)
	l.mu.Unlock()
	l.launched.Add(1)
	l.live.Add(1)
	return p, nil
}

// Launched returns how many browsers were started.
func (l *Launcher) Launched() int { return int(l.launched.Load()) }

// Live returns how many started browsers have not been closed.
func (l *Launcher) Live() int { return int(l.live.Load()) }

// Pages returns every page launched so far.
func (l *Launcher) Pages() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page(nil), l.pages...)
}

func (l *Launcher) stage(ctx context.Context, s Stage) error {
	if l.Hang[s] {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := l.Fail[s]; err != nil {
		return err
	}
	return ctx.Err()
}

// Page records every call made to it.
type Page struct {
	Options engine.LaunchOptions

	launcher *Launcher

	mu         sync.Mutex
	calls      []Stage
	cookies    []auth.Cookie
	headers    map[string]string
	url        string
	selector   string
	pdfOptions engine.PDFOptions
	closes     int
}

func (p *Page) record(s Stage) {
	p.mu.Lock()
	p.calls = append(p.calls, s)
	p.mu.Unlock()
}

// Calls returns the operations invoked, in order.
func (p *Page) Calls() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Stage(nil), p.calls...)
}

// CloseCount returns how many times Close was called.
func (p *Page) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// Cookies returns the cookies injected into the page.
func (p *Page) Cookies() []auth.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]auth.Cookie(nil), p.cookies...)
}

// Headers returns the extra headers injected into the page.
func (p *Page) Headers() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headers
}

// URL returns the address navigated to.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Selector returns the readiness selector waited on.
func (p *Page) Selector() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selector
}

// PDFOptions returns the options of the last print.
func (p *Page) PDFOptions() engine.PDFOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pdfOptions
}

func (p *Page) SetCookies(ctx context.Context, state auth.AuthState) error {
	p.record(StageCookies)
	if err := p.launcher.stage(ctx, StageCookies); err != nil {
		return err
	}
	p.mu.Lock()
	p.cookies = append(p.cookies, state.Cookies...)
	p.mu.Unlock()
	return nil
}

func (p *Page) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	p.record(StageHeaders)
	if err := p.launcher.stage(ctx, StageHeaders); err != nil {
		return err
	}
	p.mu.Lock()
	p.headers = headers
	p.mu.Unlock()
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.record(StageNavigate)
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return p.launcher.stage(ctx, StageNavigate)
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	p.record(StageWait)
	p.mu.Lock()
	p.selector = selector
	p.mu.Unlock()
	return p.launcher.stage(ctx, StageWait)
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.record(StageHTML)
	if err := p.launcher.stage(ctx, StageHTML); err != nil {
		return "", err
	}
	return p.launcher.HTML, nil
}

func (p *Page) PrintToPDF(ctx context.Context, opts engine.PDFOptions) ([]byte, error) {
	p.record(StagePDF)
	p.mu.Lock()
	p.pdfOptions = opts
	p.mu.Unlock()
	if err := p.launcher.stage(ctx, StagePDF); err != nil {
		return nil, err
	}
	return p.launcher.PDF, nil
}

func (p *Page) Close(ctx context.Context) error {
	p.record(StageClose)
	p.mu.Lock()
	p.closes++
	first := p.closes == 1
	p.mu.Unlock()
	if first {
		p.launcher.live.Add(-1)
	}
	if p.launcher.Hang[StageClose] {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := p.launcher.Fail[StageClose]; err != nil {
		return err
	}
	return nil
}

// ErrInjected is a convenience failure for tests.
var ErrInjected = errors.New("injected failure")
