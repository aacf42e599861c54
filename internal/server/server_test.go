package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/law-makers/cvpress/internal/cache"
	"github.com/law-makers/cvpress/internal/callback"
	"github.com/law-makers/cvpress/internal/engine"
	"github.com/law-makers/cvpress/internal/engine/enginetest"
	"github.com/law-makers/cvpress/internal/engine/render"
	"github.com/law-makers/cvpress/internal/payment"
	"github.com/law-makers/cvpress/internal/pipeline"
	"github.com/law-makers/cvpress/internal/ratelimit"
	"github.com/law-makers/cvpress/internal/reqctx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeExporter struct {
	mu   sync.Mutex
	reqs []pipeline.ExportRequest
	err  error
}

func (f *fakeExporter) Export(ctx context.Context, req pipeline.ExportRequest) (*render.Artifact, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &render.Artifact{Data: []byte("%PDF-1.7"), ContentType: render.ContentTypePDF, Filename: "cv.pdf", Format: render.A4}, nil
}

type fakeMpesa struct {
	calls int
	resp  json.RawMessage
	err   error
}

func (f *fakeMpesa) Push(ctx context.Context, req payment.PushRequest) (json.RawMessage, error) {
	f.calls++
	return f.resp, f.err
}

type fakeCard struct {
	price int64
	err   error
}

func (f *fakeCard) CreateIntent(ctx context.Context, price int64) (*payment.Intent, error) {
	f.price = price
	if f.err != nil {
		return nil, f.err
	}
	return &payment.Intent{ClientSecret: "pi_secret", ServerTime: 1700000000000}, nil
}

func newTestServer(deps Deps, opts Options) http.Handler {
	opts.Logger = zerolog.Nop()
	return New(deps, opts).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const jobsHTML = `<ul class="jobs-search__results-list">
<li><div class="base-card">Web Developer, Acme</div></li>
<li><div class="base-card">Go Engineer, Globex</div></li>
<li><div class="base-card">Frontend, Initech</div></li>
</ul>`

func newScraper(l *enginetest.Launcher) (*pipeline.Scraper, *engine.Opener) {
	opener := engine.NewOpener(l, engine.OpenerOptions{MaxSessions: 2, TeardownTimeout: time.Second})
	settings := pipeline.LinkedInJobs()
	settings.Readiness.Grace = 0
	return pipeline.NewScraper(opener, settings, pipeline.Options{}), opener
}

func TestScrape_Success(t *testing.T) {
	l := &enginetest.Launcher{HTML: jobsHTML}
	scraper, opener := newScraper(l)
	h := newTestServer(Deps{Scraper: scraper, Sessions: opener}, Options{})

	for _, path := range []string{"/api/linkedin-scraper", "/api/scrape"} {
		rec := do(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)

		out := decode(t, rec)
		assert.Equal(t, true, out["success"])
		jobs := out["jobs"].([]interface{})
		assert.Equal(t, float64(len(jobs)), out["totalJobs"])
		for i, j := range jobs {
			assert.Equal(t, float64(i+1), j.(map[string]interface{})["id"])
		}
	}
	assert.Zero(t, opener.Active())
	assert.Zero(t, l.Live())
}

func TestScrape_ZeroMatches(t *testing.T) {
	scraper, _ := newScraper(&enginetest.Launcher{HTML: "<html><body></body></html>"})
	h := newTestServer(Deps{Scraper: scraper}, Options{})

	rec := do(t, h, http.MethodGet, "/api/linkedin-scraper", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"totalJobs":0,"jobs":[]}`, rec.Body.String())
}

func TestScrape_Failure(t *testing.T) {
	scraper, opener := newScraper(&enginetest.Launcher{
		Fail: map[enginetest.Stage]error{enginetest.StageNavigate: fmt.Errorf("net::ERR_NAME_NOT_RESOLVED")},
	})
	h := newTestServer(Deps{Scraper: scraper}, Options{})

	rec := do(t, h, http.MethodGet, "/api/linkedin-scraper", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Failed to scrape LinkedIn jobs", out["error"])
	assert.Equal(t, "page could not be loaded", out["message"])
	assert.NotContains(t, rec.Body.String(), "ERR_NAME_NOT_RESOLVED")
	assert.Zero(t, opener.Active())
}

func TestScrape_BadFormat(t *testing.T) {
	scraper, _ := newScraper(&enginetest.Launcher{})
	h := newTestServer(Deps{Scraper: scraper}, Options{})

	rec := do(t, h, http.MethodGet, "/api/scrape?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport_Download(t *testing.T) {
	exp := &fakeExporter{}
	h := newTestServer(Deps{Exporter: exp}, Options{})

	rec := do(t, h, http.MethodPost, "/api/export", `{"resumeName":"jane","resumeId":42,"language":"en","url":"http://169.254.169.254/"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="cv.pdf"`)
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	require.Len(t, exp.reqs, 1)
	assert.Equal(t, "42", exp.reqs[0].ResumeID)
	assert.Empty(t, exp.reqs[0].URL, "the address is never taken from the request")
}

func TestExport_FailureStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{engine.NewEngineError(engine.ErrCodeNavigationTimeout, "x", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{engine.NewEngineError(engine.ErrCodeNavigation, "x", nil), http.StatusBadGateway},
		{engine.NewEngineError(engine.ErrCodeBusy, "x", engine.ErrNoSlot), http.StatusServiceUnavailable},
		{engine.NewEngineError(engine.ErrCodeConfiguration, "resumeId is required", nil), http.StatusBadRequest},
		{engine.NewEngineError(engine.ErrCodeRender, "x", nil), http.StatusInternalServerError},
		{engine.NewEngineError(engine.ErrCodeCanceled, "x", context.Canceled), statusClientClosedRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		h := newTestServer(Deps{Exporter: &fakeExporter{err: tt.err}}, Options{})
		rec := do(t, h, http.MethodPost, "/api/export", `{"resumeName":"a","resumeId":"1","language":"en"}`)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())

		out := decode(t, rec)
		assert.Equal(t, false, out["success"])
		assert.Equal(t, "Failed to export resume", out["error"])
	}
}

func TestExport_BodyMissing(t *testing.T) {
	h := newTestServer(Deps{Exporter: &fakeExporter{}}, Options{})
	rec := do(t, h, http.MethodPost, "/api/export", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMpesaPay(t *testing.T) {
	ledger := cache.NewMemoryCache[callback.Receipt](cache.Options{})
	defer ledger.Close()
	notifier := callback.NewNotifier(ledger, time.Hour)

	mp := &fakeMpesa{resp: json.RawMessage(`{"CheckoutRequestID":"ws_CO_1","ResponseCode":"0"}`)}
	h := newTestServer(Deps{Mpesa: mp, Callbacks: notifier}, Options{})

	rec := do(t, h, http.MethodPost, "/api/mpesa/pay", `{"phone":"254708374149","amount":10,"accountRef":"CV-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"CheckoutRequestID":"ws_CO_1","ResponseCode":"0"}`, rec.Body.String())

	receipt, ok := notifier.Lookup("ws_CO_1")
	require.True(t, ok)
	assert.Equal(t, callback.Pending, receipt.State)
}

func TestMpesaPay_Validation(t *testing.T) {
	mp := &fakeMpesa{}
	h := newTestServer(Deps{Mpesa: mp}, Options{})

	rec := do(t, h, http.MethodPost, "/api/mpesa/pay", `{"amount":10,"accountRef":"CV-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing parameters"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/mpesa/pay", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Request body missing"}`, rec.Body.String())

	assert.Zero(t, mp.calls, "no provider call on invalid input")
}

func TestMpesaPay_ProviderFailures(t *testing.T) {
	h := newTestServer(Deps{Mpesa: &fakeMpesa{err: fmt.Errorf("dial tcp: refused")}}, Options{})
	rec := do(t, h, http.MethodPost, "/api/mpesa/pay", `{"phone":"1","amount":"1","accountRef":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Mpesa payment failed"}`, rec.Body.String())

	h = newTestServer(Deps{Mpesa: &fakeMpesa{err: &payment.ProviderError{Provider: "mpesa", StatusCode: 400, Message: "Invalid Amount"}}}, Options{})
	rec = do(t, h, http.MethodPost, "/api/mpesa/pay", `{"phone":"1","amount":"1","accountRef":"x"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"Mpesa payment failed: Invalid Amount"}`, rec.Body.String())
}

func TestMpesaCallback_Idempotent(t *testing.T) {
	ledger := cache.NewMemoryCache[callback.Receipt](cache.Options{})
	defer ledger.Close()
	h := newTestServer(Deps{Callbacks: callback.NewNotifier(ledger, time.Hour)}, Options{})

	payload := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_9","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`
	first := do(t, h, http.MethodPost, "/api/mpesa/callback", payload)
	second := do(t, h, http.MethodPost, "/api/mpesa/callback", payload)
	garbage := do(t, h, http.MethodPost, "/api/mpesa/callback", "not json")

	for _, rec := range []*httptest.ResponseRecorder{first, second, garbage} {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rec.Body.String())
	}
}

func TestPay(t *testing.T) {
	card := &fakeCard{}
	h := newTestServer(Deps{Card: card}, Options{})

	rec := do(t, h, http.MethodPost, "/api/pay", `{"price":"15"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"client_secret":"pi_secret","server_time":1700000000000}`, rec.Body.String())
	assert.Equal(t, int64(15), card.price)

	rec = do(t, h, http.MethodPost, "/api/pay", `{"price":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAndDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newTestServer(Deps{}, Options{Now: func() time.Time { return now }})

	cases := map[string]string{
		"2025-12-31":               "true",
		"2025-01-01T00:00:00Z":     "false",
		"2025-06-01T12:00:01.000Z": "true",
		"not a date":               "false",
	}
	for exp, want := range cases {
		rec := do(t, h, http.MethodPost, "/api/check", fmt.Sprintf(`{"accountType":"premium","expDate":%q}`, exp))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, decode(t, rec)["status"], exp)
	}

	rec := do(t, h, http.MethodPost, "/api/date", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-06-01T12:00:00Z", decode(t, rec)["date"])
}

func TestReturnHealthAndCORS(t *testing.T) {
	scraper, opener := newScraper(&enginetest.Launcher{})
	h := newTestServer(Deps{Scraper: scraper, Sessions: opener}, Options{})

	rec := do(t, h, http.MethodGet, "/api/return", "")
	assert.Equal(t, "Hello World\n", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get(reqctx.HeaderRequestID))

	rec = do(t, h, http.MethodGet, "/healthz", "")
	out := decode(t, rec)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, float64(0), out["active_sessions"])
	assert.Equal(t, float64(2), out["max_sessions"])

	rec = do(t, h, http.MethodOptions, "/api/export", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestServer(Deps{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/return", nil)
	req.Header.Set(reqctx.HeaderRequestID, "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "trace-123", rec.Header().Get(reqctx.HeaderRequestID))
}

func TestRateLimit(t *testing.T) {
	exp := &fakeExporter{}
	h := newTestServer(Deps{Exporter: exp}, Options{Limiter: ratelimit.NewKeyLimiter(0.01, 1)})

	body := `{"resumeName":"a","resumeId":"1","language":"en"}`
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/export", body).Code)

	rec := do(t, h, http.MethodPost, "/api/export", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// payment routes are not throttled
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/return", "").Code)
	assert.Len(t, exp.reqs, 1)
}

func TestRecoverPanics(t *testing.T) {
	h := newTestServer(Deps{Exporter: panicExporter{}}, Options{})
	rec := do(t, h, http.MethodPost, "/api/export", `{"resumeName":"a","resumeId":"1","language":"en"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicExporter struct{}

func (panicExporter) Export(context.Context, pipeline.ExportRequest) (*render.Artifact, error) {
	panic("unexpected nil artifact")
}

type failingWriter struct {
	header http.Header
	status int
}

func (f *failingWriter) Header() http.Header { return f.header }
func (f *failingWriter) WriteHeader(status int) { f.status = status }
func (f *failingWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("broken pipe") }

func TestWriteFailuresAreLogged(t *testing.T) {
	var logs strings.Builder
	logger := zerolog.New(&logs)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req = req.WithContext(logger.WithContext(req.Context()))

	w := &failingWriter{header: http.Header{}}
	writeJSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	assert.Equal(t, http.StatusOK, w.status)
	assert.Contains(t, logs.String(), "Failed to write response")
	assert.Contains(t, logs.String(), "broken pipe")

	logs.Reset()
	writeBody(w, req, []byte(`{"ResponseCode":"0"}`))
	assert.Contains(t, logs.String(), `"bytes":20`)
}
