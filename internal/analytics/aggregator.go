package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/kafka"
)

// maxLatencySamples bounds the window the latency percentiles are computed
// over.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	BadFilterCount    int64        `json:"bad_filter_count"`
	ErrorCount        int64        `json:"error_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	TopTerms          []QueryCount `json:"top_terms"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	SnapshotVersion   uint64       `json:"snapshot_version"`
	SnapshotDocuments int          `json:"snapshot_documents"`
	SnapshotTerms     int          `json:"snapshot_terms"`
	CapturedAt        time.Time    `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals of search events and the last snapshot
// announcement seen.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	badFilters        int64
	errors            int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	termCounts        map[string]int64
	zeroResultQueries map[string]int64
	snapshot          indexer.SnapshotPublished
	topN              int
	startTime         time.Time
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator(topN int) *Aggregator {
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		termCounts:        make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		topN:              topN,
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleSearchEvent consumes the search event topic. Undecodable messages
// are logged and skipped.
func HandleSearchEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode search event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// HandleSnapshotPublished consumes the snapshot announcement topic.
func HandleSnapshotPublished(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[indexer.SnapshotPublished](value)
		if err != nil {
			agg.logger.Error("failed to decode snapshot event", "error", err)
			return nil
		}
		agg.RecordSnapshot(event)
		return nil
	}
}

func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	switch event.ResultType {
	case ResultBadFilter:
		a.badFilters++
		return
	case ResultError:
		a.errors++
		return
	case ResultZero:
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
	switch event.CacheStatus {
	case "hit":
		a.cacheHits++
	case "miss":
		a.cacheMisses++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	if event.Query != "" {
		a.queryCounts[event.Query]++
	}
	for _, term := range event.Terms {
		a.termCounts[term]++
	}
}

// RecordSnapshot keeps the newest announced snapshot. Announcements may
// arrive out of order.
func (a *Aggregator) RecordSnapshot(event indexer.SnapshotPublished) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if event.Version >= a.snapshot.Version {
		a.snapshot = event
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	stats := AggregatedStats{
		TotalSearches:     a.totalSearches,
		CacheHits:         a.cacheHits,
		CacheMisses:       a.cacheMisses,
		ZeroResultCount:   a.zeroResults,
		BadFilterCount:    a.badFilters,
		ErrorCount:        a.errors,
		TopQueries:        topN(a.queryCounts, a.topN),
		TopTerms:          topN(a.termCounts, a.topN),
		ZeroResultQueries: topN(a.zeroResultQueries, a.topN),
		SnapshotVersion:   a.snapshot.Version,
		SnapshotDocuments: a.snapshot.Documents,
		SnapshotTerms:     a.snapshot.Terms,
		CapturedAt:        now.UTC(),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := now.Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so equal counts list stably.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
