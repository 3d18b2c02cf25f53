package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index/segment"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/resilience"
)

// Notifier announces persisted snapshots, typically a kafka producer.
type Notifier interface {
	Publish(ctx context.Context, key string, value any) error
}

// Persister writes the indexer's published snapshot to disk when its
// version has advanced: on a timer, right after a rebuild, and on shutdown.
type Persister struct {
	indexer  *Indexer
	writer   *segment.Writer
	dataDir  string
	interval time.Duration
	keep     int
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu        sync.Mutex
	persisted uint64
	kick      chan struct{}
}

type PersisterOption func(*Persister)

func WithNotifier(n Notifier) PersisterOption {
	return func(p *Persister) { p.notifier = n }
}

func WithPersisterMetrics(m *metrics.Metrics) PersisterOption {
	return func(p *Persister) { p.metrics = m }
}

func NewPersister(ix *Indexer, cfg config.IndexerConfig, opts ...PersisterOption) *Persister {
	p := &Persister{
		indexer:  ix,
		writer:   segment.NewWriter(cfg.DataDir),
		dataDir:  cfg.DataDir,
		interval: cfg.FlushInterval,
		keep:     cfg.KeepSnapshots,
		logger:   slog.Default().With("component", "persister"),
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	ix.OnPublish(func(s *Snapshot) {
		if s.Cause == CauseRebuild {
			p.Kick()
		}
	})
	return p
}

// Kick requests a flush without waiting for the timer.
func (p *Persister) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Restore loads the newest readable snapshot from disk into the indexer.
// An empty data directory is not an error.
func (p *Persister) Restore(ctx context.Context) error {
	meta, restored, name, err := segment.LoadLatest(p.dataDir)
	if errors.Is(err, segment.ErrNoSnapshot) {
		p.logger.Info("no snapshot on disk, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if err := p.indexer.Restore(ctx, restored, meta.Version, meta.PublishedAt); err != nil {
		return err
	}
	p.mu.Lock()
	p.persisted = meta.Version
	p.mu.Unlock()
	p.logger.Info("restored from disk", "file", name, "version", meta.Version)
	return nil
}

// Flush persists the current snapshot if it is newer than the last one
// written.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.indexer.Current()
	if snap.Version <= p.persisted {
		return nil
	}
	name, err := p.writer.Write(segment.Meta{
		Version:     snap.Version,
		PublishedAt: snap.PublishedAt,
		Cause:       string(snap.Cause),
	}, snap.Index)
	if err != nil {
		p.countFlush("error")
		return fmt.Errorf("writing snapshot %d: %w", snap.Version, err)
	}
	p.persisted = snap.Version
	p.countFlush("ok")
	if _, err := p.writer.Prune(p.keep); err != nil {
		p.logger.Warn("pruning old snapshots failed", "error", err)
	}
	p.announce(ctx, snap, name)
	return nil
}

func (p *Persister) announce(ctx context.Context, snap *Snapshot, name string) {
	if p.notifier == nil {
		return
	}
	event := SnapshotPublished{
		Version:     snap.Version,
		Documents:   snap.Index.DocCount(),
		Terms:       snap.Index.TermCount(),
		File:        name,
		PublishedAt: snap.PublishedAt,
	}
	err := resilience.Retry(ctx, "announce snapshot", resilience.RetryConfig{MaxAttempts: 3}, func(ctx context.Context) error {
		return p.notifier.Publish(ctx, fmt.Sprintf("%d", snap.Version), event)
	})
	if err != nil {
		// Replicas still pick the file up on their reload timer.
		p.logger.Error("snapshot announcement failed", "version", snap.Version, "error", err)
	}
}

func (p *Persister) countFlush(status string) {
	if p.metrics != nil {
		p.metrics.SnapshotFlushesTotal.WithLabelValues(status).Inc()
	}
}

// Start runs the flush loop until ctx is cancelled, then flushes once more
// with a fresh context bounded by shutdownTimeout.
func (p *Persister) Start(ctx context.Context, shutdownTimeout time.Duration) {
	interval := p.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("flush loop stopping, performing final flush")
			finalCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := p.Flush(finalCtx); err != nil {
				p.logger.Error("final flush failed", "error", err)
			}
			cancel()
			return
		case <-p.kick:
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("flush after rebuild failed", "error", err)
			}
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("periodic flush failed", "error", err)
			}
		}
	}
}
