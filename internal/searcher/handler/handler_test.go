package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/redis"
)

type memRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.ErrNil
	}
	return v, nil
}

func (m *memRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memRedis) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	clear(m.data)
	return n, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (r *recordingTracker) Track(event analytics.SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type env struct {
	srv     *httptest.Server
	store   *docstore.MemoryStore
	indexer *indexer.Indexer
	metrics *metrics.Metrics
	tracker *recordingTracker
}

func newEnv(t *testing.T, withCache bool) *env {
	t.Helper()
	store := docstore.NewMemoryStore()
	catalog := docstore.NewMemoryCatalog()
	ix := indexer.New(store, config.IndexerConfig{ReadTimeout: time.Second, RebuildWorkers: 2}, indexer.WithCatalog(catalog))
	m := metrics.New(prometheus.NewRegistry())

	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memRedis{data: make(map[string]string)}, time.Minute, cache.WithMetrics(m))
	}
	exec := executor.New(ix, catalog, query.DefaultPolicy(), m)
	tracker := &recordingTracker{}
	mux := http.NewServeMux()
	New(exec, qc, config.SearchConfig{MaxResults: 100}, m, WithTracker(tracker)).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: store, indexer: ix, metrics: m, tracker: tracker}
}

func (e *env) add(t *testing.T, meta docstore.Metadata, body string) {
	t.Helper()
	e.store.Put(meta, body)
	_, err := e.indexer.Update(context.Background(), meta.ID)
	require.NoError(t, err)
}

func (e *env) search(t *testing.T, params url.Values) (int, executor.SearchResult, map[string]string) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + "/api/v1/search?" + params.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	var res executor.SearchResult
	var errBody map[string]string
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(raw, &res))
	} else {
		require.NoError(t, json.Unmarshal(raw, &errBody))
	}
	return resp.StatusCode, res, errBody
}

func year(y int) *int { return &y }

func TestSearchScenario(t *testing.T) {
	e := newEnv(t, false)
	e.add(t, docstore.Metadata{ID: 1, Title: "Pride and Prejudice", Author: "Jane Austen", Language: "en", Year: year(1813)},
		"It is a truth universally acknowledged...")

	status, res, _ := e.search(t, url.Values{"q": {"truth"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "truth", res.Query)
	assert.Equal(t, 1, res.Count)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Pride and Prejudice", res.Results[0].Title)
	assert.Equal(t, 1813, *res.Results[0].Year)

	_, res, _ = e.search(t, url.Values{"q": {"truth"}, "author": {"Jules Verne"}})
	assert.Equal(t, 0, res.Count)
	assert.Equal(t, map[string]string{"author": "Jules Verne"}, res.Filters)

	_, res, _ = e.search(t, url.Values{"q": {"truth"}, "year": {"1813"}})
	assert.Equal(t, 1, res.Count)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("hit")))
}

func TestBadYearIsNotZeroResults(t *testing.T) {
	e := newEnv(t, false)
	status, _, body := e.search(t, url.Values{"q": {"truth"}, "year": {"eighteen-thirteen"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_filter", body["code"])
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("bad_filter")))
}

func TestBadLimit(t *testing.T) {
	e := newEnv(t, false)
	status, _, body := e.search(t, url.Values{"q": {"truth"}, "limit": {"-3"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", body["code"])
}

func TestEmptyQueryAndEmptyIndex(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.indexer.Rebuild(context.Background())
	require.NoError(t, err)

	status, res, _ := e.search(t, url.Values{"q": {""}})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, res.Count)

	status, res, _ = e.search(t, url.Values{"q": {"anything"}})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Results)
}

func TestLimitTruncatesResultsOnly(t *testing.T) {
	e := newEnv(t, false)
	for id := uint32(1); id <= 4; id++ {
		e.add(t, docstore.Metadata{ID: id}, strings.Repeat("sea ", int(id)))
	}

	_, res, _ := e.search(t, url.Values{"q": {"sea"}, "limit": {"2"}})
	assert.Equal(t, 4, res.Count)
	require.Len(t, res.Results, 2)
	assert.Equal(t, uint32(4), res.Results[0].BookID)
	assert.Equal(t, uint32(3), res.Results[1].BookID)
}

func TestCachedSearchFollowsNewSnapshots(t *testing.T) {
	e := newEnv(t, true)
	e.add(t, docstore.Metadata{ID: 1}, "harpoon")

	_, first, _ := e.search(t, url.Values{"q": {"harpoon"}})
	_, second, _ := e.search(t, url.Values{"q": {"HARPOON"}})
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, "HARPOON", second.Query)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.CacheHitsTotal))

	e.add(t, docstore.Metadata{ID: 2}, "harpoon")
	_, third, _ := e.search(t, url.Values{"q": {"harpoon"}})
	assert.Equal(t, 2, third.Count)
	assert.Equal(t, e.indexer.Current().Version, third.SnapshotVersion)
}

func TestCacheEndpoints(t *testing.T) {
	e := newEnv(t, true)
	e.add(t, docstore.Metadata{ID: 1}, "harpoon")
	e.search(t, url.Values{"q": {"harpoon"}})

	resp, err := http.Get(e.srv.URL + "/api/v1/cache/stats")
	require.NoError(t, err)
	var stats cache.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, "closed", stats.Breaker)

	resp, err = http.Post(e.srv.URL+"/api/v1/cache/invalidate", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	e := newEnv(t, false)

	resp, err := http.Get(e.srv.URL + "/api/v1/cache/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(e.srv.URL+"/api/v1/cache/invalidate", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSearchEventsAreTracked(t *testing.T) {
	e := newEnv(t, true)
	e.add(t, docstore.Metadata{ID: 11, Title: "Moby Dick", Author: "Herman Melville", Language: "en"},
		"Call me Ishmael. The whale, the whale!")

	e.search(t, url.Values{"q": {"Whale ishmael"}})
	e.search(t, url.Values{"q": {"whale ISHMAEL"}})
	e.search(t, url.Values{"q": {"kraken"}})
	e.search(t, url.Values{"q": {"whale"}, "year": {"soon"}})

	e.tracker.mu.Lock()
	defer e.tracker.mu.Unlock()
	require.Len(t, e.tracker.events, 4)

	first := e.tracker.events[0]
	assert.Equal(t, "Whale ishmael", first.Query)
	assert.Equal(t, []string{"whale", "ishmael"}, first.Terms)
	assert.Equal(t, analytics.ResultHit, first.ResultType)
	assert.Equal(t, "miss", first.CacheStatus)
	assert.Equal(t, 1, first.Count)
	assert.NotZero(t, first.SnapshotVersion)

	assert.Equal(t, "hit", e.tracker.events[1].CacheStatus)
	assert.Equal(t, analytics.ResultZero, e.tracker.events[2].ResultType)
	assert.Equal(t, analytics.ResultBadFilter, e.tracker.events[3].ResultType)
}
