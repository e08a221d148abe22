package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nanoclaw-sidecar/config"
	"nanoclaw-sidecar/groups"
	"nanoclaw-sidecar/ipc"
	"nanoclaw-sidecar/metrics"
	"nanoclaw-sidecar/util/goroutine"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testEnv mirrors a nanoclaw data volume with two configured groups.
type testEnv struct {
	api         *API
	dataDir     string
	messagesDir string
}

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		DataDir:      dataDir,
		DefaultGroup: "dev",
		Server: config.ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
			App:  config.DefaultApplication,
		},
		API: config.APIConfig{
			MaxBodyBytes: 1 << 20,
			DocsEnabled:  true,
			RateLimit:    config.RateLimitConfig{RequestsPerSecond: 0},
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func setupTestAPI(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	dataDir := t.TempDir()
	messagesDir := ipc.MessagesDir(dataDir)
	require.NoError(t, os.MkdirAll(messagesDir, 0o755))

	cfg := testConfig(dataDir)
	for _, m := range mutate {
		m(cfg)
	}

	dir := groups.NewDirectory(map[string]string{
		"dev":    "123456789@g.us",
		"alerts": "987654321@g.us",
	})
	a := NewAPI(cfg, dir, ipc.NewWriter(messagesDir), zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { _ = a.Close() })

	return &testEnv{api: a, dataDir: dataDir, messagesDir: messagesDir}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) postJSON(t *testing.T, path string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, http.MethodPost, path, body)
}

func (e *testEnv) messageFiles(t *testing.T) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(e.messagesDir, "webhook-*.json"))
	require.NoError(t, err)
	return files
}

func TestUnknownRouteReturnsDetail(t *testing.T) {
	env := setupTestAPI(t)

	rr := env.do(t, http.MethodGet, "/nope", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"detail":"Not Found"}`, rr.Body.String())
}

func TestUnmatchedRequestsGoThroughMiddleware(t *testing.T) {
	env := setupTestAPI(t)
	notFound := metrics.HTTPRequests.WithLabelValues("unmatched", http.MethodGet, "404")
	before := testutil.ToFloat64(notFound)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodGet, "/send", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, nil)

			assert.Equal(t, tt.status, rr.Code)
			assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
		})
	}

	assert.Equal(t, before+1, testutil.ToFloat64(notFound))

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set(RequestIDHeader, "client-id-1")
	rr := httptest.NewRecorder()
	env.api.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "client-id-1", rr.Header().Get(RequestIDHeader))
}

func TestWrongMethodReturns405(t *testing.T) {
	env := setupTestAPI(t)

	rr := env.do(t, http.MethodGet, "/send", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.JSONEq(t, `{"detail":"Method Not Allowed"}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestAPI(t)
	env.do(t, http.MethodGet, "/health", nil)

	rr := env.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sidecar_http_requests_total")
}

func TestMetricsDisabled(t *testing.T) {
	env := setupTestAPI(t, func(c *config.Config) { c.Metrics.Enabled = false })

	rr := env.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDocsRoutes(t *testing.T) {
	env := setupTestAPI(t)

	rr := env.do(t, http.MethodGet, "/docs", nil)
	assert.Equal(t, http.StatusMovedPermanently, rr.Code)
	assert.Equal(t, "/docs/index.html", rr.Header().Get("Location"))

	rr = env.do(t, http.MethodGet, "/docs/doc.json", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/send")
}

func TestDocsDisabled(t *testing.T) {
	env := setupTestAPI(t, func(c *config.Config) { c.API.DocsEnabled = false })

	rr := env.do(t, http.MethodGet, "/docs/index.html", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCloseIsIdempotent(t *testing.T) {
	goroutine.AssertNoLeaks(t)
	env := setupTestAPI(t)

	assert.NoError(t, env.api.Close())
	assert.NoError(t, env.api.Close())

	select {
	case <-env.api.stopCh:
	case <-time.After(time.Second):
		t.Fatal("stop channel not closed")
	}
}
