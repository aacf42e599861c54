// internal/engine/session.go
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/law-makers/cvpress/internal/auth"
	"github.com/law-makers/cvpress/internal/metrics"
	"github.com/law-makers/cvpress/internal/proxy"
	"github.com/rs/zerolog"
)

// Defaults applied by NewOpener.
const (
	DefaultMaxSessions     = 4
	DefaultAcquireTimeout  = 10 * time.Second
	DefaultTeardownTimeout = 10 * time.Second
)

// OpenerOptions configures session admission and browser launch.
type OpenerOptions struct {
	Launch LaunchOptions
	// MaxSessions caps concurrent browsers; 0 means unbounded.
	MaxSessions     int
	AcquireTimeout  time.Duration
	TeardownTimeout time.Duration
	Proxies         *proxy.Pool
}

// Opener creates Automation Sessions. Every Open launches a fresh browser;
// nothing is pooled or shared between sessions.
type Opener struct {
	launcher        Launcher
	launch          LaunchOptions
	slots           *Slots
	acquireTimeout  time.Duration
	teardownTimeout time.Duration
	proxies         *proxy.Pool
	active          atomic.Int64
}

// NewOpener returns an Opener launching browsers through launcher.
func NewOpener(launcher Launcher, opts OpenerOptions) *Opener {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = DefaultTeardownTimeout
	}
	return &Opener{
		launcher:        launcher,
		launch:          opts.Launch,
		slots:           NewSlots(opts.MaxSessions),
		acquireTimeout:  opts.AcquireTimeout,
		teardownTimeout: opts.TeardownTimeout,
		proxies:         opts.Proxies,
	}
}

// Active returns the number of sessions whose browser has not been torn down.
func (o *Opener) Active() int {
	return int(o.active.Load())
}

// TeardownTimeout returns the default bound on one browser teardown.
func (o *Opener) TeardownTimeout() time.Duration {
	return o.teardownTimeout
}

// Capacity returns the session cap, 0 when unbounded.
func (o *Opener) Capacity() int {
	return o.slots.Capacity()
}

// SessionConfig is the per-request part of a session's setup.
type SessionConfig struct {
	// Kind labels logs and metrics ("export", "scrape").
	Kind string
	// Auth is injected before the first navigation. Empty means anonymous.
	Auth      auth.AuthState
	UserAgent string
}

// Open acquires a slot, launches a browser and injects cfg.Auth. On error
// nothing is left running.
func (o *Opener) Open(ctx context.Context, cfg SessionConfig) (*Session, error) {
	release, err := o.slots.Acquire(ctx, o.acquireTimeout)
	if err != nil {
		return nil, err
	}

	launch := o.launch
	if cfg.UserAgent != "" {
		launch.UserAgent = cfg.UserAgent
	}
	launch.Proxy = o.proxies.Next()

	id := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().
		Str("session_id", id).
		Str("kind", cfg.Kind).
		Logger()

	page, err := o.launcher.Launch(ctx, launch)
	if err != nil {
		release()
		if CodeOf(err) == "" {
			if ee := FromContext(ctx, "browser launch interrupted", err); ee != nil {
				err = ee
			} else {
				err = NewEngineError(ErrCodeLaunch, "browser launch failed", err)
			}
		}
		logger.Error().Err(err).Msg("Browser launch failed")
		return nil, err
	}

	o.active.Add(1)
	metrics.SessionsActive.Inc()

	s := &Session{
		ID:       id,
		Kind:     cfg.Kind,
		Proxy:    launch.Proxy,
		page:     page,
		opener:   o,
		release:  release,
		logger:   logger,
		openedAt: time.Now(),
	}

	if err := s.injectAuth(ctx, cfg.Auth); err != nil {
		s.Close()
		return nil, err
	}

	logger.Debug().
		Str("proxy", launch.Proxy).
		Int("cookies", len(cfg.Auth.Cookies)).
		Msg("Session opened")
	return s, nil
}

// Session owns one browser process and its page from launch to teardown.
// It is single-use: one navigation, one consumer, one Close.
type Session struct {
	ID    string
	Kind  string
	Proxy string

	page     Page
	opener   *Opener
	release  func()
	logger   zerolog.Logger
	openedAt time.Time

	mu        sync.Mutex
	target    Target
	navigated bool
	ready     bool
	closed    bool
	consumer  string

	closeOnce sync.Once
	closeErr  error
}

// Logger returns the session's child logger.
func (s *Session) Logger() *zerolog.Logger {
	return &s.logger
}

// Target returns the navigation target, zero before Navigate.
func (s *Session) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *Session) injectAuth(ctx context.Context, state auth.AuthState) error {
	if state.Empty() {
		return nil
	}
	if err := s.page.SetCookies(ctx, state); err != nil {
		return NewEngineError(ErrCodeLaunch, "failed to inject auth cookies", err)
	}
	if err := s.page.SetExtraHeaders(ctx, state.Headers); err != nil {
		return NewEngineError(ErrCodeLaunch, "failed to inject auth headers", err)
	}
	return nil
}

// Navigate loads t.URL and waits for t.Readiness. The load and a selector
// wait share t.MaxWait unless Readiness.Timeout is set.
func (s *Session) Navigate(ctx context.Context, t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return NewEngineError(ErrCodeSessionState, "navigate on closed session", ErrSessionClosed)
	case s.navigated:
		s.mu.Unlock()
		return NewEngineError(ErrCodeSessionState, "session already navigated", nil).
			WithDetail("url", s.target.URL)
	}
	s.navigated = true
	s.target = t
	s.mu.Unlock()

	logger := s.logger.With().Str("target", t.URL).Logger()
	start := time.Now()

	navCtx, cancel := context.WithTimeout(ctx, t.maxWait())
	defer cancel()

	if err := s.page.Navigate(navCtx, t.URL); err != nil {
		return s.navigationError(navCtx, err, "navigation failed", t)
	}

	if sel := t.Readiness.Selector; sel != "" {
		waitCtx := navCtx
		if t.Readiness.Timeout > 0 {
			var cancelWait context.CancelFunc
			waitCtx, cancelWait = context.WithTimeout(ctx, t.Readiness.Timeout)
			defer cancelWait()
		}
		if err := s.page.WaitVisible(waitCtx, sel); err != nil {
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return NewEngineError(ErrCodeNavigationTimeout, "readiness marker not visible in time", ErrNotReady).
					WithDetail("url", t.URL).
					WithDetail("selector", sel)
			}
			return s.navigationError(waitCtx, err, "readiness wait failed", t)
		}
	} else if t.Readiness.DelayOnly() {
		logger.Warn().
			Dur("grace", t.Readiness.Grace).
			Msg("Readiness is a fixed delay only; output may be incomplete under load")
	}

	if err := sleepCtx(ctx, t.Readiness.Grace); err != nil {
		return FromContext(ctx, "readiness grace interrupted", err).WithDetail("url", t.URL)
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	s.opener.proxies.MarkHealthy(s.Proxy)
	logger.Info().
		Dur("elapsed", time.Since(start)).
		Str("selector", t.Readiness.Selector).
		Msg("Page ready")
	return nil
}

func (s *Session) navigationError(opCtx context.Context, err error, msg string, t Target) error {
	out := FromContext(opCtx, msg, err)
	if out == nil && !errors.As(Classify(err, msg), &out) {
		out = NewEngineError(ErrCodeNavigation, msg, err)
	}
	out.WithDetail("url", t.URL)

	// Only a failure of the target itself counts against the proxy.
	if out.Code == ErrCodeNavigation {
		s.opener.proxies.MarkFailed(s.Proxy)
	}
	return out
}

// Ready reports whether the readiness condition has been observed.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && !s.closed
}

// Claim registers the session's single consumer.
func (s *Session) Claim(consumer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return NewEngineError(ErrCodeSessionState, "claim on closed session", ErrSessionClosed)
	case !s.navigated:
		return NewEngineError(ErrCodeSessionState, "claim before navigation", ErrNotNavigated)
	case s.consumer != "":
		return NewEngineError(ErrCodeSessionState, "session already claimed", ErrAlreadyClaimed).
			WithDetail("consumer", s.consumer)
	}
	s.consumer = consumer
	return nil
}

// Snapshot returns the serialized DOM of the navigated page.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	if err := s.usable(false); err != nil {
		return "", err
	}
	return s.page.HTML(ctx)
}

// PrintToPDF prints the page. It refuses to run before readiness holds.
func (s *Session) PrintToPDF(ctx context.Context, opts PDFOptions) ([]byte, error) {
	if err := s.usable(true); err != nil {
		return nil, err
	}
	return s.page.PrintToPDF(ctx, opts)
}

func (s *Session) usable(needReady bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return NewEngineError(ErrCodeSessionState, "session closed", ErrSessionClosed)
	case !s.navigated:
		return NewEngineError(ErrCodeSessionState, "session has not navigated", ErrNotNavigated)
	case needReady && !s.ready:
		return NewEngineError(ErrCodeNotReady, "page is not ready", ErrNotReady)
	}
	return nil
}

// Close tears the browser down within the opener's teardown timeout. Only
// the first call does work; later calls return the first result. Teardown
// runs on its own deadline so a canceled caller cannot leave the process
// behind.
func (s *Session) Close() error {
	return s.CloseWithin(s.opener.teardownTimeout)
}

// CloseWithin is Close bounded by limit instead of the opener default.
// A non-positive limit falls back to the default.
func (s *Session) CloseWithin(limit time.Duration) error {
	if limit <= 0 {
		limit = s.opener.teardownTimeout
	}
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), limit)
		defer cancel()

		if err := s.page.Close(ctx); err != nil {
			s.closeErr = NewEngineError(ErrCodeTeardown, "browser teardown failed", err)
			metrics.TeardownFailures.Inc()
			s.logger.Warn().Err(err).Msg("Browser teardown failed")
		}

		s.release()
		s.opener.active.Add(-1)
		metrics.SessionsActive.Dec()
		metrics.SessionDuration.WithLabelValues(s.Kind).Observe(time.Since(s.openedAt).Seconds())

		s.logger.Debug().Dur("lifetime", time.Since(s.openedAt)).Msg("Session closed")
	})
	return s.closeErr
}
