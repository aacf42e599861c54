package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/law-makers/cvpress/internal/auth"
	"github.com/law-makers/cvpress/internal/engine"
	"github.com/law-makers/cvpress/internal/engine/enginetest"
	"github.com/law-makers/cvpress/internal/engine/extract"
	"github.com/law-makers/cvpress/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const jobsHTML = `<html><body>
<ul class="jobs-search__results-list">
  <li><div class="base-card"><h3>Web Developer</h3><h4>Acme</h4></div></li>
  <li><div class="base-card">   </div></li>
  <li><div class="base-card"><h3>Frontend Engineer</h3><h4>Globex</h4></div></li>
</ul>
</body></html>`

func newOpener(l *enginetest.Launcher) *engine.Opener {
	return engine.NewOpener(l, engine.OpenerOptions{
		MaxSessions:     2,
		AcquireTimeout:  time.Second,
		TeardownTimeout: time.Second,
	})
}

func testExportSettings() ExportSettings {
	s := DefaultExportSettings("http://frontend.test")
	s.Readiness.Grace = 0
	return s
}

func testScrapeSettings() ScrapeSettings {
	s := LinkedInJobs()
	s.Readiness.Grace = 0
	return s
}

func assertTornDown(t *testing.T, l *enginetest.Launcher, o *engine.Opener) {
	t.Helper()
	for _, p := range l.Pages() {
		assert.Equal(t, 1, p.CloseCount(), "page closed exactly once")
	}
	assert.Zero(t, l.Live(), "no browser left running")
	assert.Zero(t, o.Active(), "no session left active")
}

func TestExport_Success(t *testing.T) {
	l := &enginetest.Launcher{PDF: []byte("%PDF-1.7")}
	o := newOpener(l)
	ex := NewExporter(o, testExportSettings(), Options{})

	artifact, err := ex.Export(context.Background(), ExportRequest{
		ResumeName: "Jane Doe", ResumeID: "42", Language: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), artifact.Data)
	assert.Equal(t, "Jane-Doe.pdf", artifact.Filename)

	require.Len(t, l.Pages(), 1)
	page := l.Pages()[0]
	assert.Equal(t, "http://frontend.test/export/Jane%20Doe/42/en", page.URL())
	assert.Equal(t, "#resumen", page.Selector())
	assert.Equal(t, 8.27, page.PDFOptions().PaperWidth)
	assert.True(t, page.PDFOptions().PrintBackground)
	assertTornDown(t, l, o)
}

func TestExport_FormatOverride(t *testing.T) {
	l := &enginetest.Launcher{PDF: []byte("%PDF")}
	o := newOpener(l)
	ex := NewExporter(o, testExportSettings(), Options{})

	_, err := ex.Export(context.Background(), ExportRequest{URL: "http://frontend.test/cv", Format: "letter", Landscape: true})
	require.NoError(t, err)
	opts := l.Pages()[0].PDFOptions()
	assert.Equal(t, 8.5, opts.PaperWidth)
	assert.True(t, opts.Landscape)

	_, err = ex.Export(context.Background(), ExportRequest{URL: "http://frontend.test/cv", Format: "b5"})
	assert.Equal(t, engine.ErrCodeConfiguration, engine.CodeOf(err))
	assert.Equal(t, 1, l.Launched())
}

func TestExport_MissingFieldsLaunchesNothing(t *testing.T) {
	l := &enginetest.Launcher{}
	ex := NewExporter(newOpener(l), testExportSettings(), Options{})

	_, err := ex.Export(context.Background(), ExportRequest{ResumeName: "x", Language: "en"})
	assert.Equal(t, engine.ErrCodeConfiguration, engine.CodeOf(err))
	assert.Zero(t, l.Launched())

	_, err = ex.Export(context.Background(), ExportRequest{ResumeName: "..", ResumeID: "1", Language: "en"})
	assert.Equal(t, engine.ErrCodeConfiguration, engine.CodeOf(err))
	assert.Zero(t, l.Launched())
}

func TestExport_TeardownOnEveryFailure(t *testing.T) {
	tests := []struct {
		name string
		fail enginetest.Stage
		code engine.ErrorCode
	}{
		{"navigate", enginetest.StageNavigate, engine.ErrCodeNavigation},
		{"readiness", enginetest.StageWait, engine.ErrCodeNavigation},
		{"render", enginetest.StagePDF, engine.ErrCodeRender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &enginetest.Launcher{
				PDF:  []byte("%PDF"),
				Fail: map[enginetest.Stage]error{tt.fail: enginetest.ErrInjected},
			}
			o := newOpener(l)
			ex := NewExporter(o, testExportSettings(), Options{})

			_, err := ex.Export(context.Background(), ExportRequest{ResumeName: "a", ResumeID: "1", Language: "en"})
			require.Error(t, err)
			assert.Equal(t, tt.code, engine.CodeOf(err))
			assert.ErrorIs(t, err, enginetest.ErrInjected)
			assertTornDown(t, l, o)
		})
	}
}

func TestExport_EmptyDocumentIsRenderError(t *testing.T) {
	l := &enginetest.Launcher{}
	o := newOpener(l)
	ex := NewExporter(o, testExportSettings(), Options{})

	_, err := ex.Export(context.Background(), ExportRequest{ResumeName: "a", ResumeID: "1", Language: "en"})
	assert.Equal(t, engine.ErrCodeRender, engine.CodeOf(err))
	assertTornDown(t, l, o)
}

func TestExport_UnreachableTargetTimesOut(t *testing.T) {
	l := &enginetest.Launcher{Hang: map[enginetest.Stage]bool{enginetest.StageNavigate: true}}
	o := newOpener(l)
	settings := testExportSettings()
	settings.MaxWait = 50 * time.Millisecond
	ex := NewExporter(o, settings, Options{})

	start := time.Now()
	_, err := ex.Export(context.Background(), ExportRequest{ResumeName: "a", ResumeID: "1", Language: "en"})
	assert.Equal(t, engine.ErrCodeNavigationTimeout, engine.CodeOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
	assertTornDown(t, l, o)
}

func TestExport_SessionTimeoutBoundsRender(t *testing.T) {
	l := &enginetest.Launcher{Hang: map[enginetest.Stage]bool{enginetest.StagePDF: true}}
	o := newOpener(l)
	ex := NewExporter(o, testExportSettings(), Options{SessionTimeout: 50 * time.Millisecond})

	_, err := ex.Export(context.Background(), ExportRequest{ResumeName: "a", ResumeID: "1", Language: "en"})
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeRender, engine.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assertTornDown(t, l, o)
}

func TestExport_SessionTimeoutDuringGraceIsTimeout(t *testing.T) {
	l := &enginetest.Launcher{PDF: []byte("%PDF")}
	o := newOpener(l)
	settings := testExportSettings()
	settings.Readiness.Grace = 3 * time.Second
	ex := NewExporter(o, settings, Options{SessionTimeout: 100 * time.Millisecond})

	_, err := ex.Export(context.Background(), ExportRequest{ResumeName: "a", ResumeID: "1", Language: "en"})
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeNavigationTimeout, engine.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assertTornDown(t, l, o)
}

func TestExport_SessionTimeoutIncludesTeardown(t *testing.T) {
	l := &enginetest.Launcher{Hang: map[enginetest.Stage]bool{
		enginetest.StageNavigate: true,
		enginetest.StageClose:    true,
	}}
	o := newOpener(l)
	ex := NewExporter(o, testExportSettings(), Options{SessionTimeout: 200 * time.Millisecond})

	start := time.Now()
	_, err := ex.Export(context.Background(), ExportRequest{ResumeName: "a", ResumeID: "1", Language: "en"})
	elapsed := time.Since(start)

	assert.Equal(t, engine.ErrCodeNavigationTimeout, engine.CodeOf(err))
	assert.Less(t, elapsed, 400*time.Millisecond, "teardown stays inside the session budget")
	assertTornDown(t, l, o)
}

func TestExport_CallerCancellationStillTearsDown(t *testing.T) {
	l := &enginetest.Launcher{Hang: map[enginetest.Stage]bool{enginetest.StageWait: true}}
	o := newOpener(l)
	ex := NewExporter(o, testExportSettings(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := ex.Export(ctx, ExportRequest{ResumeName: "a", ResumeID: "1", Language: "en"})
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeCanceled, engine.CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assertTornDown(t, l, o)
}

func TestExport_TeardownFailureDoesNotMaskSuccess(t *testing.T) {
	l := &enginetest.Launcher{
		PDF:  []byte("%PDF"),
		Fail: map[enginetest.Stage]error{enginetest.StageClose: enginetest.ErrInjected},
	}
	o := newOpener(l)
	ex := NewExporter(o, testExportSettings(), Options{})

	artifact, err := ex.Export(context.Background(), ExportRequest{ResumeName: "a", ResumeID: "1", Language: "en"})
	require.NoError(t, err)
	assert.NotEmpty(t, artifact.Data)
	assert.Zero(t, o.Active())
}

func TestScrape_Records(t *testing.T) {
	l := &enginetest.Launcher{HTML: jobsHTML}
	o := newOpener(l)
	sc := NewScraper(o, testScrapeSettings(), Options{})

	records, err := sc.Scrape(context.Background(), ScrapeOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].ID)
	assert.Equal(t, 2, records[1].ID)
	assert.Contains(t, records[0].Content, "Web Developer")
	assert.Contains(t, records[1].Content, "Globex")

	page := l.Pages()[0]
	assert.Equal(t, LinkedInJobsURL, page.URL())
	assert.Equal(t, engine.DefaultUserAgent, page.Options.UserAgent)
	assertTornDown(t, l, o)
}

func TestScrape_ZeroMatches(t *testing.T) {
	l := &enginetest.Launcher{HTML: `<html><body><ul class="jobs-search__results-list"></ul></body></html>`}
	o := newOpener(l)
	sc := NewScraper(o, testScrapeSettings(), Options{})

	records, err := sc.Scrape(context.Background(), ScrapeOptions{})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assertTornDown(t, l, o)
}

func TestScrape_InjectsStoredAuthBeforeNavigation(t *testing.T) {
	store, err := auth.NewFileStore(t.TempDir())
	require.NoError(t, err)
	future := float64(time.Now().Add(time.Hour).Unix())
	require.NoError(t, store.Save("linkedin", auth.NewState("linkedin", "", []auth.Cookie{
		{Name: "li_at", Value: "token", Domain: ".linkedin.com", Expires: future},
	}, nil)))

	l := &enginetest.Launcher{HTML: jobsHTML}
	o := newOpener(l)
	sc := NewScraper(o, testScrapeSettings(), Options{Store: store})

	_, err = sc.Scrape(context.Background(), ScrapeOptions{})
	require.NoError(t, err)

	page := l.Pages()[0]
	require.Len(t, page.Cookies(), 1)
	calls := page.Calls()
	assert.Equal(t, []enginetest.Stage{enginetest.StageCookies, enginetest.StageHeaders, enginetest.StageNavigate}, calls[:3])
}

func TestScrape_CorruptStoreRunsAnonymously(t *testing.T) {
	dir := t.TempDir()
	store, err := auth.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "linkedin.json"), []byte("not json"), 0600))

	l := &enginetest.Launcher{HTML: jobsHTML}
	o := newOpener(l)
	sc := NewScraper(o, testScrapeSettings(), Options{Store: store})

	records, err := sc.Scrape(context.Background(), ScrapeOptions{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.NotContains(t, l.Pages()[0].Calls(), enginetest.StageCookies)
}

func TestScrape_ExtractionFailure(t *testing.T) {
	l := &enginetest.Launcher{Fail: map[enginetest.Stage]error{enginetest.StageHTML: enginetest.ErrInjected}}
	o := newOpener(l)
	sc := NewScraper(o, testScrapeSettings(), Options{})

	_, err := sc.Scrape(context.Background(), ScrapeOptions{})
	assert.Equal(t, engine.ErrCodeExtraction, engine.CodeOf(err))
	assertTornDown(t, l, o)
}

func TestScrape_OverridesAndMarkdown(t *testing.T) {
	html := `<html><body><article><a href="/jobs/1">Go developer</a></article></body></html>`
	l := &enginetest.Launcher{HTML: html}
	o := newOpener(l)
	sc := NewScraper(o, testScrapeSettings(), Options{})

	records, err := sc.Scrape(context.Background(), ScrapeOptions{
		URL:      "https://jobs.example.com/search",
		Selector: "article",
		Format:   extract.FormatMarkdown,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "[Go developer](https://jobs.example.com/jobs/1)", records[0].Content)
}

func TestScrape_InvalidSelectorLaunchesNothing(t *testing.T) {
	l := &enginetest.Launcher{}
	sc := NewScraper(newOpener(l), testScrapeSettings(), Options{})

	_, err := sc.Scrape(context.Background(), ScrapeOptions{Selector: "div[["})
	assert.Equal(t, engine.ErrCodeConfiguration, engine.CodeOf(err))
	assert.Zero(t, l.Launched())
}

func TestScrape_HostRateLimit(t *testing.T) {
	l := &enginetest.Launcher{HTML: jobsHTML}
	o := newOpener(l)
	sc := NewScraper(o, testScrapeSettings(), Options{
		Hosts:          ratelimit.NewKeyLimiter(0.001, 1),
		SessionTimeout: 50 * time.Millisecond,
	})

	_, err := sc.Scrape(context.Background(), ScrapeOptions{})
	require.NoError(t, err)

	_, err = sc.Scrape(context.Background(), ScrapeOptions{})
	assert.Equal(t, engine.ErrCodeBusy, engine.CodeOf(err))
	assert.Equal(t, 1, l.Launched())
}
