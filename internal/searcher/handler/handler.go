// Package handler exposes search and result-cache administration over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/tracing"
)

type SearchExecutor interface {
	Snapshot() *indexer.Snapshot
	SearchSnapshot(ctx context.Context, snap *indexer.Snapshot, q query.Query, limit int) (*executor.SearchResult, error)
	Policy() query.Policy
}

// Tracker receives one event per answered search.
type Tracker interface {
	Track(event analytics.SearchEvent)
}

type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	metrics      *metrics.Metrics
	tracker      Tracker
	defaultLimit int
	maxResults   int
	slowQuery    time.Duration
	logger       *slog.Logger
}

type Option func(*Handler)

func WithTracker(t Tracker) Option {
	return func(h *Handler) { h.tracker = t }
}

// New builds the handler. queryCache and m may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, cfg config.SearchConfig, m *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		executor:     exec,
		cache:        queryCache,
		metrics:      m,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		slowQuery:    cfg.SlowQuery,
		logger:       slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := logger.RequestID(r.Context())
	ctx, span := tracing.StartSpan(r.Context(), "search", requestID)
	defer span.Finish(h.logger, h.slowQuery)
	log := logger.FromContext(ctx)
	params := r.URL.Query()
	event := analytics.SearchEvent{Query: params.Get("q"), Timestamp: start.UTC(), RequestID: requestID}

	filters, err := query.ParseFilters(params.Get("author"), params.Get("language"), params.Get("year"))
	if err != nil {
		h.finish(event, analytics.ResultBadFilter, start)
		h.writeError(w, err)
		return
	}
	event.Filters = filters.Echo()
	limit, err := h.parseLimit(params.Get("limit"))
	if err != nil {
		h.finish(event, analytics.ResultError, start)
		h.writeError(w, err)
		return
	}

	q := query.Parse(params.Get("q"), filters)
	snap := h.executor.Snapshot()
	event.Terms = q.Terms
	event.SnapshotVersion = snap.Version
	span.SetAttr("terms", len(q.Terms))
	span.SetAttr("snapshot_version", snap.Version)
	if q.Empty() {
		h.finish(event, analytics.ResultZero, start)
		h.writeJSON(w, http.StatusOK, executor.EmptyResult(q, snap.Version))
		return
	}

	var result *executor.SearchResult
	cacheStatus := "disabled"
	compute := func() (*executor.SearchResult, error) {
		return h.executor.SearchSnapshot(ctx, snap, q, limit)
	}
	if h.cache != nil {
		key := cache.Key(snap.Version, snap.PublishedAt, q.CacheKey(h.executor.Policy(), limit))
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, key, compute)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = compute()
	}
	event.CacheStatus = cacheStatus
	span.SetAttr("cache", cacheStatus)
	if err != nil {
		log.Error("search execution failed", "query", q.Text, "error", err)
		h.finish(event, analytics.ResultError, start)
		h.writeError(w, err)
		return
	}

	// A cached or shared result may come from a request spelled differently.
	echoed := *result
	echoed.Query = q.Text
	echoed.Filters = filters.Echo()

	event.Count = echoed.Count
	event.Returned = len(echoed.Results)
	resultType := analytics.ResultHit
	if echoed.Count == 0 {
		resultType = analytics.ResultZero
	}
	elapsed := h.finish(event, resultType, start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	}
	log.Info("search completed",
		"query", q.Text,
		"count", echoed.Count,
		"returned", len(echoed.Results),
		"cache", cacheStatus,
		"snapshot_version", echoed.SnapshotVersion,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, &echoed)
}

// finish counts the query and hands its event to the tracker.
func (h *Handler) finish(event analytics.SearchEvent, resultType string, start time.Time) time.Duration {
	elapsed := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
	if h.tracker != nil {
		event.ResultType = resultType
		event.LatencyMs = elapsed.Milliseconds()
		h.tracker.Track(event)
	}
	return elapsed
}

// parseLimit returns 0 for "no limit". Values above the configured maximum
// are clamped.
func (h *Handler) parseLimit(raw string) (int, error) {
	limit := h.defaultLimit
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, apperrors.Newf(apperrors.ErrInvalidInput, 0, "limit %q must be a positive integer", raw)
		}
		limit = n
	}
	if h.maxResults > 0 && (limit == 0 || limit > h.maxResults) {
		limit = h.maxResults
	}
	return limit, nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{
		"error": err.Error(),
		"code":  apperrors.Code(err),
	})
}
