package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/law-makers/cvpress/internal/auth"
	"github.com/law-makers/cvpress/internal/config"
	"github.com/law-makers/cvpress/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.AuthStore = auth.StoreFile
	cfg.AuthDir = t.TempDir()
	cfg.JSONLog = true
	cfg.LogLevel = "error"
	return cfg
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewWiresComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSessions = 2
	cfg.Proxies = []string{"http://p1:8080"}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, 2, a.Opener.Capacity())
	assert.Equal(t, 0, a.Opener.Active())
	assert.NotNil(t, a.Clients)
	assert.IsType(t, &auth.FileStore{}, a.AuthStore)
	assert.Equal(t, "https://sandbox.safaricom.co.ke", a.Mpesa.BaseURL())

	addr, err := a.Exporter.Address(pipeline.ExportRequest{ResumeName: "jane", ResumeID: "1", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/export/jane/1/en", addr)
}

func TestHandlerServesHealth(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close(context.Background())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"max_sessions":4`)
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitRPS = 0

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())
	assert.Nil(t, a.Clients)
}

func TestCloseStopsBackgroundWork(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))
	assert.Greater(t, a.Uptime(), time.Duration(0))
}
