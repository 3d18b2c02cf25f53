// Package indexer owns the published index snapshot. It applies single-book
// updates and full rebuilds read from the document store, publishing each
// result with one atomic pointer store so concurrent readers always see a
// complete snapshot. It also persists snapshots to disk and, for read
// replicas, reloads them.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

// Indexer serialises writers and publishes snapshots. Reads of the current
// snapshot never block.
type Indexer struct {
	store   docstore.Store
	catalog docstore.Catalog
	cfg     config.IndexerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	current    atomic.Pointer[Snapshot]
	state      atomic.Pointer[State]
	lastUpdate atomic.Pointer[time.Time]
	// writer is a one-slot semaphore; holding the slot is the writer
	// section.
	writer chan struct{}

	hooksMu sync.RWMutex
	hooks   []func(*Snapshot)
}

type Option func(*Indexer)

func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Indexer) { ix.metrics = m }
}

// WithCatalog records the metadata of every indexed book in c.
func WithCatalog(c docstore.Catalog) Option {
	return func(ix *Indexer) { ix.catalog = c }
}

// New creates an Indexer publishing an empty snapshot at version 0.
func New(store docstore.Store, cfg config.IndexerConfig, opts ...Option) *Indexer {
	if cfg.RebuildWorkers <= 0 {
		cfg.RebuildWorkers = 1
	}
	ix := &Indexer{
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "indexer"),
		writer: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(ix)
	}
	snap := emptySnapshot()
	ix.current.Store(snap)
	ix.state.Store(&State{Kind: Idle})
	ix.lastUpdate.Store(&snap.PublishedAt)
	return ix
}

// Current returns the published snapshot.
func (ix *Indexer) Current() *Snapshot {
	return ix.current.Load()
}

// State returns the writer phase.
func (ix *Indexer) State() State {
	return *ix.state.Load()
}

// Status summarises the published snapshot without waiting for writers.
func (ix *Indexer) Status() Status {
	snap := ix.current.Load()
	return Status{
		Documents:  snap.Index.DocCount(),
		Terms:      snap.Index.TermCount(),
		Version:    snap.Version,
		Cause:      snap.Cause,
		State:      ix.State(),
		LastUpdate: *ix.lastUpdate.Load(),
	}
}

// OnPublish registers fn to run after every publication. fn runs on the
// writer's goroutine and must not block.
func (ix *Indexer) OnPublish(fn func(*Snapshot)) {
	ix.hooksMu.Lock()
	defer ix.hooksMu.Unlock()
	ix.hooks = append(ix.hooks, fn)
}

func (ix *Indexer) acquire(ctx context.Context, st State) error {
	select {
	case ix.writer <- struct{}{}:
		ix.state.Store(&st)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ix *Indexer) release() {
	ix.state.Store(&State{Kind: Idle})
	<-ix.writer
}

// publish installs next as the current snapshot. Callers hold the writer
// section.
func (ix *Indexer) publish(next *index.Index, cause Cause) *Snapshot {
	prev := ix.current.Load()
	snap := &Snapshot{
		Version:     prev.Version + 1,
		PublishedAt: time.Now().UTC(),
		Cause:       cause,
		Index:       next,
	}
	ix.current.Store(snap)
	ix.lastUpdate.Store(&snap.PublishedAt)
	ix.metrics.ObserveSnapshot(snap.Version, next.DocCount(), next.TermCount())

	ix.hooksMu.RLock()
	hooks := ix.hooks
	ix.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(snap)
	}
	return snap
}

// Restore installs a previously persisted index as the current snapshot.
// It is meant for startup, before any update runs.
func (ix *Indexer) Restore(ctx context.Context, restored *index.Index, version uint64, publishedAt time.Time) error {
	if err := ix.acquire(ctx, State{Kind: Idle}); err != nil {
		return err
	}
	defer ix.release()
	if cur := ix.current.Load(); version <= cur.Version {
		return fmt.Errorf("restoring version %d over version %d", version, cur.Version)
	}
	snap := &Snapshot{Version: version, PublishedAt: publishedAt, Cause: CauseRestore, Index: restored}
	ix.current.Store(snap)
	ix.lastUpdate.Store(&snap.PublishedAt)
	ix.metrics.ObserveSnapshot(version, restored.DocCount(), restored.TermCount())
	ix.logger.Info("snapshot restored", "version", version, "docs", restored.DocCount(), "terms", restored.TermCount())
	return nil
}

type book struct {
	meta   docstore.Metadata
	counts index.TermCounts
}

// readBook loads and tokenises one book, bounded by the read timeout.
func (ix *Indexer) readBook(ctx context.Context, id uint32) (book, error) {
	var b book
	err := resilience.WithTimeout(ctx, ix.cfg.ReadTimeout, fmt.Sprintf("reading book %d", id), func(ctx context.Context) error {
		meta, err := ix.store.Metadata(ctx, id)
		if err != nil {
			return err
		}
		body, err := ix.store.Body(ctx, id)
		if err != nil {
			return err
		}
		counts := index.CountTerms(tokenizer.Terms(body))
		meta.ID = id
		meta.WordCount = docstore.WordCount(body)
		meta.UniqueWords = counts.Unique()
		b = book{meta: meta, counts: counts}
		return nil
	})
	if err != nil {
		return book{}, err
	}
	return b, nil
}

// Update re-indexes one book from the document store and publishes the
// result. On any error the published snapshot is unchanged.
func (ix *Indexer) Update(ctx context.Context, id uint32) (*Snapshot, error) {
	if err := ix.acquire(ctx, State{Kind: Updating, BookID: id}); err != nil {
		return nil, err
	}
	defer ix.release()

	start := time.Now()
	b, err := ix.readBook(ctx, id)
	if err != nil {
		ix.countUpdate(err)
		ix.logger.Warn("book update failed", "book_id", id, "error", err)
		return nil, fmt.Errorf("updating book %d: %w", id, err)
	}
	next := ix.current.Load().Index.MergeCounted(id, b.counts)
	if ix.catalog != nil {
		if err := ix.catalog.Put(ctx, b.meta); err != nil {
			ix.countUpdate(err)
			return nil, fmt.Errorf("cataloguing book %d: %w", id, err)
		}
	}
	if err := ctx.Err(); err != nil {
		ix.countUpdate(err)
		return nil, err
	}
	snap := ix.publish(next, CauseUpdate)
	ix.countUpdate(nil)
	ix.logger.Info("book indexed",
		"book_id", id,
		"title", b.meta.Title,
		"unique_terms", b.meta.UniqueWords,
		"version", snap.Version,
		"duration", time.Since(start),
	)
	return snap, nil
}

func (ix *Indexer) countUpdate(err error) {
	if ix.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = apperrors.Code(err)
	}
	ix.metrics.IndexUpdatesTotal.WithLabelValues(status).Inc()
}

// Rebuild re-indexes every book the document store lists and publishes the
// new index as one snapshot. Any failure aborts the rebuild and leaves the
// published snapshot authoritative; the error wraps ErrRebuildAborted and
// the cause.
func (ix *Indexer) Rebuild(ctx context.Context) (RebuildResult, error) {
	if err := ix.acquire(ctx, State{Kind: Rebuilding}); err != nil {
		return RebuildResult{}, err
	}
	defer ix.release()

	start := time.Now()
	result, err := ix.rebuild(ctx, start)
	elapsed := time.Since(start)
	if ix.metrics != nil {
		status := "ok"
		if err != nil {
			status = "aborted"
		}
		ix.metrics.RebuildsTotal.WithLabelValues(status).Inc()
		ix.metrics.RebuildDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		ix.logger.Error("rebuild aborted", "error", err, "elapsed", elapsed)
		return RebuildResult{}, fmt.Errorf("%w: %w", apperrors.ErrRebuildAborted, err)
	}
	return result, nil
}

func (ix *Indexer) rebuild(ctx context.Context, start time.Time) (RebuildResult, error) {
	ids, err := ix.store.ListIDs(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("listing books: %w", err)
	}
	ix.logger.Info("rebuild started", "books", len(ids), "workers", ix.cfg.RebuildWorkers)

	books := make([]book, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.RebuildWorkers)
	for i, id := range ids {
		g.Go(func() error {
			b, err := ix.readBook(gctx, id)
			if err != nil {
				return fmt.Errorf("book %d: %w", id, err)
			}
			books[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RebuildResult{}, err
	}

	counts := make(map[uint32]index.TermCounts, len(books))
	for _, b := range books {
		counts[b.meta.ID] = b.counts
	}
	next := index.BuildCounted(counts)

	if ix.catalog != nil {
		for _, b := range books {
			if err := ix.catalog.Put(ctx, b.meta); err != nil {
				return RebuildResult{}, fmt.Errorf("cataloguing book %d: %w", b.meta.ID, err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return RebuildResult{}, err
	}

	snap := ix.publish(next, CauseRebuild)
	elapsed := time.Since(start)
	ix.logger.Info("rebuild complete",
		"books", len(ids),
		"terms", next.TermCount(),
		"version", snap.Version,
		"elapsed", elapsed,
	)
	return RebuildResult{
		BooksProcessed: len(ids),
		Elapsed:        elapsed,
		ElapsedTime:    elapsed.Round(time.Millisecond).String(),
		Version:        snap.Version,
	}, nil
}
