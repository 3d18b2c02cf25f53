// Package executor answers term queries against an index snapshot, filtering
// and decorating the matches with catalog metadata.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/tracing"
)

// SnapshotSource hands out the snapshot to search. Both the indexer and a
// read replica satisfy it.
type SnapshotSource interface {
	Current() *indexer.Snapshot
}

type Result struct {
	BookID   uint32 `json:"book_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Language string `json:"language"`
	Year     *int   `json:"year"`
	Score    int    `json:"score"`
}

// SearchResult is the response to one query. Count is the number of
// matching books before any limit was applied to Results.
type SearchResult struct {
	Query           string            `json:"query"`
	Filters         map[string]string `json:"filters"`
	Count           int               `json:"count"`
	Results         []Result          `json:"results"`
	SnapshotVersion uint64            `json:"snapshot_version"`
}

// EmptyResult is the answer to a query without terms.
func EmptyResult(q query.Query, version uint64) *SearchResult {
	return &SearchResult{
		Query:           q.Text,
		Filters:         q.Filters.Echo(),
		Results:         []Result{},
		SnapshotVersion: version,
	}
}

type Executor struct {
	source  SnapshotSource
	catalog docstore.BatchReader
	policy  query.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(source SnapshotSource, catalog docstore.BatchReader, policy query.Policy, m *metrics.Metrics) *Executor {
	return &Executor{
		source:  source,
		catalog: catalog,
		policy:  policy,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Policy() query.Policy {
	return e.policy
}

// Snapshot returns the snapshot a search started now would read.
func (e *Executor) Snapshot() *indexer.Snapshot {
	return e.source.Current()
}

// Search runs q against the current snapshot. A non-positive limit returns
// every match.
func (e *Executor) Search(ctx context.Context, q query.Query, limit int) (*SearchResult, error) {
	return e.SearchSnapshot(ctx, e.source.Current(), q, limit)
}

// SearchSnapshot runs q against snap. All term lookups read the same
// snapshot, so a concurrent update or rebuild is either fully visible or
// not at all.
func (e *Executor) SearchSnapshot(ctx context.Context, snap *indexer.Snapshot, q query.Query, limit int) (*SearchResult, error) {
	if q.Empty() {
		return EmptyResult(q, snap.Version), nil
	}

	_, scoreSpan := tracing.StartChildSpan(ctx, "score")
	lists := make([]index.PostingList, len(q.Terms))
	for i, term := range q.Terms {
		lists[i] = snap.Index.Lookup(term)
	}
	scored := ranker.Score(lists, e.policy.RequireAll())
	scoreSpan.SetAttr("terms", len(q.Terms))
	scoreSpan.SetAttr("candidates", len(scored))
	scoreSpan.End()

	result := EmptyResult(q, snap.Version)
	if len(scored) == 0 {
		e.observe(ctx, q, result)
		return result, nil
	}

	ids := make([]uint32, len(scored))
	for i, d := range scored {
		ids[i] = d.DocID
	}
	metaCtx, metaSpan := tracing.StartChildSpan(ctx, "metadata")
	metas, err := e.catalog.MetadataBatch(metaCtx, ids)
	metaSpan.End()
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %d candidates: %w", len(ids), err)
	}

	log := logger.FromContext(ctx)
	for _, d := range scored {
		meta, ok := metas[d.DocID]
		if !ok {
			log.Warn("indexed book has no catalog entry, skipping", "book_id", d.DocID)
			continue
		}
		if !e.policy.Match(q.Filters, meta) {
			continue
		}
		result.Count++
		if limit > 0 && len(result.Results) >= limit {
			continue
		}
		result.Results = append(result.Results, Result{
			BookID:   d.DocID,
			Title:    meta.Title,
			Author:   meta.Author,
			Language: meta.Language,
			Year:     meta.Year,
			Score:    d.Score,
		})
	}
	e.observe(ctx, q, result)
	return result, nil
}

func (e *Executor) observe(ctx context.Context, q query.Query, result *SearchResult) {
	if e.metrics != nil {
		e.metrics.SearchResultsCount.Observe(float64(result.Count))
	}
	logger.FromContext(ctx).Debug("query executed",
		"query", q.Text,
		"terms", q.Terms,
		"count", result.Count,
		"returned", len(result.Results),
		"snapshot_version", result.SnapshotVersion,
	)
}
