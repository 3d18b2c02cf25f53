package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	snapshots []AggregatedStats
	limit     int
}

func (f *fakeHistory) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snapshots, nil
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestStatsEndpoint(t *testing.T) {
	agg := NewAggregator(5)
	agg.Record(SearchEvent{Query: "moby dick", Terms: []string{"moby", "dick"}, ResultType: ResultHit, CacheStatus: "miss"})

	rec := serve(NewHandler(agg, nil), "/api/v1/analytics")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.TotalSearches)
	assert.Equal(t, "moby dick", stats.TopQueries[0].Query)
}

func TestHistoryEndpoint(t *testing.T) {
	history := &fakeHistory{snapshots: []AggregatedStats{{TotalSearches: 8}, {TotalSearches: 3}}}
	h := NewHandler(NewAggregator(5), history)

	rec := serve(h, "/api/v1/analytics/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, history.limit)
	var body struct {
		Count     int               `json:"count"`
		Snapshots []AggregatedStats `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.EqualValues(t, 8, body.Snapshots[0].TotalSearches)

	rec = serve(h, "/api/v1/analytics/history?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryWithoutStore(t *testing.T) {
	rec := serve(NewHandler(NewAggregator(5), nil), "/api/v1/analytics/history")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
