// Package pipeline runs complete Automation Sessions for the export and
// scrape flows: load auth, open, navigate, hand off to one consumer, tear
// down.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/law-makers/cvpress/internal/auth"
	"github.com/law-makers/cvpress/internal/engine"
	"github.com/law-makers/cvpress/internal/metrics"
	"github.com/law-makers/cvpress/internal/ratelimit"
	"github.com/rs/zerolog"
)

// DefaultSessionTimeout bounds a whole session: navigation, consumer and
// teardown together.
const DefaultSessionTimeout = 2 * time.Minute

// Options are shared by Exporter and Scraper.
type Options struct {
	// SessionTimeout is the outer bound on one session.
	SessionTimeout time.Duration
	// Store supplies auth state; nil means every session is anonymous.
	Store auth.Store
	// Hosts spaces out navigations to the same target host. Nil disables it.
	Hosts ratelimit.RateLimiter
}

type runner struct {
	opener  *engine.Opener
	store   auth.Store
	hosts   ratelimit.RateLimiter
	timeout time.Duration
}

func newRunner(opener *engine.Opener, opts Options) runner {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	return runner{
		opener:  opener,
		store:   opts.Store,
		hosts:   opts.Hosts,
		timeout: opts.SessionTimeout,
	}
}

// job describes one session run.
type job struct {
	kind       string
	authTarget string
	userAgent  string
	target     engine.Target
	use        func(ctx context.Context, s *engine.Session) error
}

// run executes j inside its own session. The session is closed exactly once
// on every path; a teardown failure is logged by the session and never
// replaces the primary error.
func (r runner) run(ctx context.Context, j job) (err error) {
	start := time.Now()
	logger := zerolog.Ctx(ctx).With().
		Str("kind", j.kind).
		Str("target", j.target.URL).
		Logger()

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(engine.CodeOf(err))
			if outcome == "" {
				outcome = "error"
			}
		}
		metrics.SessionsTotal.WithLabelValues(j.kind, outcome).Inc()
	}()

	if err := j.target.Validate(); err != nil {
		return err
	}

	work, teardown := r.budget()
	ctx, cancel := context.WithTimeout(ctx, work)
	defer cancel()

	if r.hosts != nil {
		if err := r.hosts.Wait(ctx, ratelimit.HostKey(j.target.URL)); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return engine.FromContext(ctx, "canceled while waiting for target host", err)
			}
			return engine.NewEngineError(engine.ErrCodeBusy, "target host is rate limited", err).WithRetry()
		}
	}

	state := auth.LoadOrEmpty(ctx, r.store, j.authTarget)

	s, err := r.opener.Open(ctx, engine.SessionConfig{
		Kind:      j.kind,
		Auth:      state,
		UserAgent: j.userAgent,
	})
	if err != nil {
		return err
	}
	defer s.CloseWithin(teardown)

	if err := s.Navigate(ctx, j.target); err != nil {
		return r.annotate(ctx, err)
	}
	if err := j.use(ctx, s); err != nil {
		return r.annotate(ctx, err)
	}

	logger.Info().
		Str("session_id", s.ID).
		Dur("elapsed", time.Since(start)).
		Msg("Session complete")
	return nil
}

// budget splits the session timeout between the work (navigate and
// consume) and teardown, so the whole session ends within r.timeout. The
// work keeps at least half of it.
func (r runner) budget() (work, teardown time.Duration) {
	teardown = r.opener.TeardownTimeout()
	if teardown > r.timeout/2 {
		teardown = r.timeout / 2
	}
	return r.timeout - teardown, teardown
}

// annotate marks errors caused by the outer session budget running out.
func (r runner) annotate(ctx context.Context, err error) error {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		ee.WithDetail("session_timeout", r.timeout.String())
		return err
	}
	return engine.NewEngineError(engine.ErrCodeNavigationTimeout, "session exceeded its time budget", err).
		WithDetail("session_timeout", r.timeout.String())
}
