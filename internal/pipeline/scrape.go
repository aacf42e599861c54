package pipeline

import (
	"context"
	"time"

	"github.com/law-makers/cvpress/internal/engine"
	"github.com/law-makers/cvpress/internal/engine/extract"
)

// LinkedInJobsURL is the public jobs search queried by default.
const LinkedInJobsURL = "https://www.linkedin.com/jobs/search?keywords=web%20developer&location=United%20States&geoId=103644278&trk=public_jobs_jobs-search-bar_search-submit&position=1&pageNum=0"

// LinkedInLoginURL is where an operator captures the "linkedin" auth state.
const LinkedInLoginURL = "https://www.linkedin.com/login"

// ScrapeSettings describe the page scraped and what counts as one record.
type ScrapeSettings struct {
	URL          string
	MaxWait      time.Duration
	Readiness    engine.Readiness
	ItemSelector string
	AuthTarget   string
	UserAgent    string
}

// LinkedInJobs returns settings for the public LinkedIn jobs search,
// authenticated with the "linkedin" auth state when one is stored.
func LinkedInJobs() ScrapeSettings {
	return ScrapeSettings{
		URL:     LinkedInJobsURL,
		MaxWait: 60 * time.Second,
		Readiness: engine.Readiness{
			Selector: "ul.jobs-search__results-list",
			Timeout:  30 * time.Second,
			Grace:    3 * time.Second,
		},
		ItemSelector: "ul.jobs-search__results-list div.base-card",
		AuthTarget:   "linkedin",
		UserAgent:    engine.DefaultUserAgent,
	}
}

// ScrapeOptions tune one scrape. Zero values use the settings.
type ScrapeOptions struct {
	Format   extract.Format
	URL      string
	Selector string
}

// Scraper extracts records from a page, one isolated session per request.
type Scraper struct {
	runner
	settings ScrapeSettings
}

// NewScraper returns a Scraper opening sessions through opener.
func NewScraper(opener *engine.Opener, settings ScrapeSettings, opts Options) *Scraper {
	return &Scraper{runner: newRunner(opener, opts), settings: settings}
}

// Settings returns the scraper's configuration.
func (sc *Scraper) Settings() ScrapeSettings {
	return sc.settings
}

// Scrape navigates to the configured page and extracts one record per
// matching element. A page with no matches yields an empty slice.
func (sc *Scraper) Scrape(ctx context.Context, opts ScrapeOptions) ([]extract.Record, error) {
	addr := sc.settings.URL
	if opts.URL != "" {
		addr = opts.URL
	}
	query := extract.Query{
		Selector: sc.settings.ItemSelector,
		Format:   opts.Format,
		BaseURL:  addr,
	}
	if opts.Selector != "" {
		query.Selector = opts.Selector
	}
	if _, err := query.Compile(); err != nil {
		return nil, err
	}

	var records []extract.Record
	err := sc.run(ctx, job{
		kind:       "scrape",
		authTarget: sc.settings.AuthTarget,
		userAgent:  sc.settings.UserAgent,
		target: engine.Target{
			URL:       addr,
			MaxWait:   sc.settings.MaxWait,
			Readiness: sc.settings.Readiness,
		},
		use: func(ctx context.Context, s *engine.Session) error {
			r, err := extract.Extract(ctx, s, query)
			records = r
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
