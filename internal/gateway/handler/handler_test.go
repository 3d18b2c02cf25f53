package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/resilience"
)

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(Config{SearcherURL: "localhost:7003"}, nil)
	assert.Error(t, err)

	h, err := New(Config{SearcherURL: "http://localhost:7003"}, nil)
	require.NoError(t, err)
	assert.Nil(t, h.Indexer)
	assert.Len(t, h.Backends(), 1)
}

func TestBackendErrorStatusIsPassedThrough(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no such book","code":"document_not_found"}`, http.StatusNotFound)
	}))
	defer up.Close()

	b, err := NewBackend("indexer", up.URL, nil)
	require.NoError(t, err)
	for range 10 {
		rec := httptest.NewRecorder()
		b.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/index/update/9", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, resilience.StateClosed, b.breaker.GetState())
	assert.Error(t, b.Probe(t.Context()), "liveness answers 404 here")
}

func TestUnreachableBackendOpensBreaker(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	target := down.URL
	down.Close()

	m := metrics.New(prometheus.NewRegistry())
	b, err := NewBackend("searcher", target, m)
	require.NoError(t, err)

	for range 5 {
		rec := httptest.NewRecorder()
		b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=emma", nil))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	}
	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=emma", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("gateway-searcher")))
	assert.Error(t, b.Probe(t.Context()))
}
