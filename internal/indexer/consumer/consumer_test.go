package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	updated   []uint32
	rebuilds  int
	updateErr error
	// failures makes the first n updates fail with updateErr.
	failures int
	calls    int
}

func (f *fakeController) Update(_ context.Context, id uint32) (*indexer.Snapshot, error) {
	f.calls++
	if f.updateErr != nil && (f.failures == 0 || f.calls <= f.failures) {
		return nil, f.updateErr
	}
	f.updated = append(f.updated, id)
	return &indexer.Snapshot{Version: uint64(len(f.updated))}, nil
}

func (f *fakeController) Rebuild(context.Context) (indexer.RebuildResult, error) {
	f.rebuilds++
	return indexer.RebuildResult{}, nil
}

type fakeRequeuer struct {
	keys     []string
	requests []indexer.IndexRequest
	err      error
}

func (f *fakeRequeuer) Publish(_ context.Context, key string, value any) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.requests = append(f.requests, value.(indexer.IndexRequest))
	return nil
}

func fastRetries(t *testing.T) {
	prev := RetryConfig
	RetryConfig.InitialDelay = time.Millisecond
	t.Cleanup(func() { RetryConfig = prev })
}

func TestHandleIndexRequest(t *testing.T) {
	ctrl := &fakeController{}
	handle := HandleIndexRequest(ctrl, nil)
	ctx := context.Background()

	assert.NoError(t, handle(ctx, nil, []byte(`{"action":"update","book_id":1342}`)))
	assert.NoError(t, handle(ctx, nil, []byte(`{"action":"rebuild"}`)))
	assert.NoError(t, handle(ctx, nil, []byte(`{"action":"delete","book_id":1}`)))
	assert.NoError(t, handle(ctx, nil, []byte(`not json`)))

	assert.Equal(t, []uint32{1342}, ctrl.updated)
	assert.Equal(t, 1, ctrl.rebuilds)
}

func TestHandleIndexRequestErrors(t *testing.T) {
	fastRetries(t)
	ctx := context.Background()
	msg := []byte(`{"action":"update","book_id":9}`)

	missing := &fakeController{updateErr: apperrors.New(apperrors.ErrDocumentNotFound, 0, "book 9")}
	assert.NoError(t, HandleIndexRequest(missing, nil)(ctx, nil, msg), "unknown books are committed")
	assert.Equal(t, 1, missing.calls, "not found is not retried")

	unreadable := &fakeController{updateErr: apperrors.New(apperrors.ErrUnreadable, 0, "io")}
	assert.ErrorIs(t, HandleIndexRequest(unreadable, nil)(ctx, nil, msg), apperrors.ErrUnreadable)
	assert.Equal(t, RetryConfig.MaxAttempts, unreadable.calls)

	internal := &fakeController{updateErr: apperrors.New(apperrors.ErrInternal, 0, "bug")}
	assert.NoError(t, HandleIndexRequest(internal, nil)(ctx, nil, msg))
	assert.Equal(t, 1, internal.calls)
}

func TestHandleIndexRequestRetriesTransientFailures(t *testing.T) {
	fastRetries(t)
	ctrl := &fakeController{updateErr: apperrors.New(apperrors.ErrTimeout, 0, "slow disk"), failures: 2}

	err := HandleIndexRequest(ctrl, nil)(context.Background(), []byte("9"), []byte(`{"action":"update","book_id":9}`))

	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, ctrl.updated)
	assert.Equal(t, 3, ctrl.calls)
}

func TestHandleIndexRequestRequeuesPersistentFailures(t *testing.T) {
	fastRetries(t)
	ctx := context.Background()
	msg := []byte(`{"action":"update","book_id":9}`)
	ctrl := &fakeController{updateErr: apperrors.New(apperrors.ErrUnreadable, 0, "io")}

	requeue := &fakeRequeuer{}
	require.NoError(t, HandleIndexRequest(ctrl, requeue)(ctx, []byte("9"), msg))
	assert.Equal(t, []string{"9"}, requeue.keys)
	assert.Equal(t, indexer.IndexRequest{Action: indexer.ActionUpdate, BookID: 9}, requeue.requests[0])

	broken := &fakeRequeuer{err: errors.New("broker down")}
	assert.ErrorIs(t, HandleIndexRequest(ctrl, broken)(ctx, []byte("9"), msg), apperrors.ErrUnreadable,
		"an unrequeued request goes back to the consumer for redelivery")
}

type fakeReloader struct {
	versions []uint64
	err      error
}

func (f *fakeReloader) ReloadIfBehind(v uint64) (bool, error) {
	f.versions = append(f.versions, v)
	return true, f.err
}

func TestHandleSnapshotPublished(t *testing.T) {
	r := &fakeReloader{}
	handle := HandleSnapshotPublished(r)
	assert.NoError(t, handle(context.Background(), nil, []byte(`{"version":12,"file":"snap_00000000000000000012.spdx"}`)))
	assert.Equal(t, []uint64{12}, r.versions)

	r.err = errors.New("disk")
	assert.Error(t, handle(context.Background(), nil, []byte(`{"version":13}`)))
}
