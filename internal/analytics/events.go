// Package analytics collects search events from the search services and
// aggregates them into query statistics.
package analytics

import "time"

// Result types of a search event. They match the search_queries_total
// metric labels.
const (
	ResultHit       = "hit"
	ResultZero      = "zero_result"
	ResultBadFilter = "bad_filter"
	ResultError     = "error"
)

// SearchEvent describes one answered search request.
type SearchEvent struct {
	Query           string            `json:"query"`
	Terms           []string          `json:"terms"`
	Filters         map[string]string `json:"filters,omitempty"`
	ResultType      string            `json:"result_type"`
	Count           int               `json:"count"`
	Returned        int               `json:"returned"`
	LatencyMs       int64             `json:"latency_ms"`
	CacheStatus     string            `json:"cache_status"`
	SnapshotVersion uint64            `json:"snapshot_version"`
	Timestamp       time.Time         `json:"timestamp"`
	RequestID       string            `json:"request_id,omitempty"`
}

// CacheHit reports whether the result came from the result cache.
func (e SearchEvent) CacheHit() bool {
	return e.CacheStatus == "hit"
}
