package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index/segment"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
)

// Replica serves the newest snapshot persisted by an indexer. It never
// writes; new versions arrive through Reload.
type Replica struct {
	dataDir string
	metrics *metrics.Metrics
	logger  *slog.Logger

	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

func NewReplica(dataDir string, m *metrics.Metrics) *Replica {
	r := &Replica{
		dataDir: dataDir,
		metrics: m,
		logger:  slog.Default().With("component", "replica"),
	}
	r.current.Store(emptySnapshot())
	return r
}

func (r *Replica) Current() *Snapshot {
	return r.current.Load()
}

// Reload installs the newest snapshot on disk if it is newer than the one
// being served, and reports whether it did.
func (r *Replica) Reload() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, loaded, name, err := segment.LoadLatest(r.dataDir)
	if errors.Is(err, segment.ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading snapshot: %w", err)
	}
	cur := r.current.Load()
	if meta.Version <= cur.Version {
		return false, nil
	}
	r.current.Store(&Snapshot{
		Version:     meta.Version,
		PublishedAt: meta.PublishedAt,
		Cause:       CauseRestore,
		Index:       loaded,
	})
	r.metrics.ObserveSnapshot(meta.Version, loaded.DocCount(), loaded.TermCount())
	r.logger.Info("snapshot reloaded", "file", name, "version", meta.Version, "previous", cur.Version)
	return true, nil
}

// ReloadIfBehind reloads when version is newer than the served snapshot.
func (r *Replica) ReloadIfBehind(version uint64) (bool, error) {
	if version <= r.current.Load().Version {
		return false, nil
	}
	return r.Reload()
}

// Start reloads on a timer until ctx is cancelled.
func (r *Replica) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reload(); err != nil {
				r.logger.Error("periodic reload failed", "error", err)
			}
		}
	}
}
