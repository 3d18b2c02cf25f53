package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	fails  int
	events []SnapshotPublished
}

func (n *recordingNotifier) Publish(_ context.Context, _ string, value any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails > 0 {
		n.fails--
		return errors.New("broker unavailable")
	}
	n.events = append(n.events, value.(SnapshotPublished))
	return nil
}

func (n *recordingNotifier) published() []SnapshotPublished {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SnapshotPublished(nil), n.events...)
}

func TestPersisterFlushAndRestore(t *testing.T) {
	cfg := testConfig(t)
	store := docstore.NewMemoryStore()
	store.Put(docstore.Metadata{ID: 1342}, "pride and prejudice")
	ix := New(store, cfg)
	notifier := &recordingNotifier{fails: 1}
	p := NewPersister(ix, cfg, WithNotifier(notifier))
	ctx := context.Background()

	require.NoError(t, p.Flush(ctx), "nothing to write at version 0")
	names, err := segment.List(cfg.DataDir)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = ix.Update(ctx, 1342)
	require.NoError(t, err)
	require.NoError(t, p.Flush(ctx))
	require.NoError(t, p.Flush(ctx))

	names, err = segment.List(cfg.DataDir)
	require.NoError(t, err)
	assert.Equal(t, []string{segment.FileName(1)}, names)
	events := notifier.published()
	require.Len(t, events, 1, "announcement retried after one failure")
	assert.Equal(t, uint64(1), events[0].Version)
	assert.Equal(t, segment.FileName(1), events[0].File)
	assert.Equal(t, 3, events[0].Terms)

	restarted := New(docstore.NewMemoryStore(), cfg)
	require.NoError(t, NewPersister(restarted, cfg).Restore(ctx))
	snap := restarted.Current()
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, CauseRestore, snap.Cause)
	assert.Equal(t, ix.Current().Index.Entries(), snap.Index.Entries())
}

func TestPersisterRestoreEmptyDir(t *testing.T) {
	cfg := testConfig(t)
	ix := New(docstore.NewMemoryStore(), cfg)
	require.NoError(t, NewPersister(ix, cfg).Restore(context.Background()))
	assert.Equal(t, CauseEmpty, ix.Current().Cause)
}

func TestPersisterKeepsNewestSnapshots(t *testing.T) {
	cfg := testConfig(t)
	store := docstore.NewMemoryStore()
	store.Put(docstore.Metadata{ID: 1}, "a")
	ix := New(store, cfg)
	p := NewPersister(ix, cfg)
	for range 4 {
		_, err := ix.Update(context.Background(), 1)
		require.NoError(t, err)
		require.NoError(t, p.Flush(context.Background()))
	}
	names, err := segment.List(cfg.DataDir)
	require.NoError(t, err)
	assert.Equal(t, []string{segment.FileName(3), segment.FileName(4)}, names)
}

func TestPersisterFlushesAfterRebuildAndOnShutdown(t *testing.T) {
	cfg := testConfig(t)
	store := docstore.NewMemoryStore()
	store.Put(docstore.Metadata{ID: 1}, "a")
	ix := New(store, cfg)
	p := NewPersister(ix, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Start(ctx, time.Second)
		close(stopped)
	}()

	_, err := ix.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		names, _ := segment.List(cfg.DataDir)
		return len(names) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = ix.Update(context.Background(), 1)
	require.NoError(t, err)
	cancel()
	<-stopped

	names, err := segment.List(cfg.DataDir)
	require.NoError(t, err)
	assert.Equal(t, []string{segment.FileName(1), segment.FileName(2)}, names)
}

func TestReplicaReload(t *testing.T) {
	cfg := testConfig(t)
	store := docstore.NewMemoryStore()
	store.Put(docstore.Metadata{ID: 5}, "moby dick")
	ix := New(store, cfg)
	p := NewPersister(ix, cfg)
	r := NewReplica(cfg.DataDir, nil)

	reloaded, err := r.Reload()
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Equal(t, CauseEmpty, r.Current().Cause)

	_, err = ix.Update(context.Background(), 5)
	require.NoError(t, err)
	require.NoError(t, p.Flush(context.Background()))

	reloaded, err = r.ReloadIfBehind(1)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, uint64(1), r.Current().Version)
	assert.Len(t, r.Current().Index.Lookup("moby"), 1)

	reloaded, err = r.ReloadIfBehind(1)
	require.NoError(t, err)
	assert.False(t, reloaded)
}
