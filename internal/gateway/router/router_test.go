package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/auth/apikey"
	gwhandler "github.com/Adithya-Monish-Kumar-K/booksearch/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
)

// backend answers with its name, the path it saw and the request id.
func backend(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"backend":    name,
			"path":       r.URL.Path,
			"query":      r.URL.RawQuery,
			"request_id": r.Header.Get("X-Request-ID"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	gateway *httptest.Server
	key     string
}

func newFixture(t *testing.T, withAnalytics bool) *fixture {
	t.Helper()
	gcfg := gwhandler.Config{
		IngestionURL: backend(t, "ingestion").URL,
		IndexerURL:   backend(t, "indexer").URL,
		SearcherURL:  backend(t, "searcher").URL,
	}
	if withAnalytics {
		gcfg.AnalyticsURL = backend(t, "analytics").URL
	}
	m := metrics.New(prometheus.NewRegistry())
	h, err := gwhandler.New(gcfg, m)
	require.NoError(t, err)

	raw, digest, err := apikey.GenerateKey()
	require.NoError(t, err)
	ring, err := apikey.NewKeyring([]string{digest})
	require.NoError(t, err)

	cfg := config.Config{}
	cfg.Server.CORSOrigins = []string{"https://books.example"}
	srv := httptest.NewServer(New(h, ring, health.NewChecker(), cfg, m))
	t.Cleanup(srv.Close)
	return &fixture{gateway: srv, key: raw}
}

func (f *fixture) do(t *testing.T, method, path, key string) (int, map[string]string) {
	t.Helper()
	req, err := http.NewRequest(method, f.gateway.URL+path, strings.NewReader(""))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-gw")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestRoutesReachTheirBackend(t *testing.T) {
	f := newFixture(t, true)

	tests := []struct {
		method, path, backend string
	}{
		{http.MethodGet, "/api/v1/search?q=whale&author=Herman+Melville", "searcher"},
		{http.MethodGet, "/api/v1/cache/stats", "searcher"},
		{http.MethodGet, "/api/v1/index/status", "indexer"},
		{http.MethodGet, "/api/v1/ingest/list", "ingestion"},
		{http.MethodGet, "/api/v1/analytics", "analytics"},
		{http.MethodGet, "/api/v1/analytics/history", "analytics"},
		{http.MethodPost, "/api/v1/index/rebuild", "indexer"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := f.do(t, tt.method, tt.path, f.key)
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.backend, body["backend"])
			assert.Equal(t, "req-gw", body["request_id"])
		})
	}

	_, body := f.do(t, http.MethodGet, "/api/v1/search?q=whale", "")
	assert.Equal(t, "q=whale", body["query"])
}

func TestMutatingRoutesNeedKey(t *testing.T) {
	f := newFixture(t, true)

	status, body := f.do(t, http.MethodPost, "/api/v1/ingest/1342", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["code"])

	status, _ = f.do(t, http.MethodPost, "/api/v1/cache/invalidate", "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = f.do(t, http.MethodPost, "/api/v1/ingest/1342", f.key)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/api/v1/ingest/1342", body["path"])
}

func TestUnconfiguredBackend(t *testing.T) {
	f := newFixture(t, false)
	status, body := f.do(t, http.MethodGet, "/api/v1/analytics", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "upstream_unavailable", body["code"])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, false)
	req, err := http.NewRequest(http.MethodOptions, f.gateway.URL+"/api/v1/ingest/1342", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://books.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://books.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-API-Key")
}
