// Package consumer turns kafka messages into indexer calls: index requests
// drive the indexing node, snapshot announcements drive read replicas.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/resilience"
)

// Controller is the part of *indexer.Indexer the request consumer drives.
type Controller interface {
	Update(ctx context.Context, id uint32) (*indexer.Snapshot, error)
	Rebuild(ctx context.Context) (indexer.RebuildResult, error)
}

// Requeuer puts an index request back at the end of the topic.
type Requeuer interface {
	Publish(ctx context.Context, key string, value any) error
}

// RetryConfig bounds the in-handler retries of a request that failed with
// a transient error.
var RetryConfig = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	Retryable:    transient,
}

func transient(err error) bool {
	return errors.Is(err, apperrors.ErrUnreadable) || errors.Is(err, apperrors.ErrTimeout)
}

// HandleIndexRequest returns a handler for the index request topic.
// Malformed messages, unknown books and other permanent failures are logged
// and committed. Transient failures are retried; when they persist the
// request is requeued, or returned so the consumer redelivers it when
// requeue is nil or fails.
func HandleIndexRequest(ctrl Controller, requeue Requeuer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[indexer.IndexRequest](value)
		if err != nil {
			logger.Error("failed to decode index request", "error", err, "key", string(key))
			return nil
		}
		if req.Action != indexer.ActionUpdate && req.Action != indexer.ActionRebuild {
			logger.Error("unknown index request action dropped", "action", req.Action)
			return nil
		}

		err = resilience.Retry(ctx, "index request", RetryConfig, func(ctx context.Context) error {
			return apply(ctx, logger, ctrl, req)
		})
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, apperrors.ErrDocumentNotFound):
			logger.Warn("index request for missing book dropped", "action", req.Action, "book_id", req.BookID)
			return nil
		case !transient(err):
			logger.Error("index request failed", "action", req.Action, "book_id", req.BookID, "error", err)
			return nil
		}

		if requeue != nil {
			perr := requeue.Publish(ctx, string(key), req)
			if perr == nil {
				logger.Warn("index request requeued", "action", req.Action, "book_id", req.BookID, "error", err)
				return nil
			}
			logger.Error("requeue failed", "book_id", req.BookID, "error", perr)
		}
		return fmt.Errorf("%s book %d: %w", req.Action, req.BookID, err)
	}
}

func apply(ctx context.Context, logger *slog.Logger, ctrl Controller, req indexer.IndexRequest) error {
	if req.Action == indexer.ActionRebuild {
		res, err := ctrl.Rebuild(ctx)
		if err != nil {
			return err
		}
		logger.Info("rebuild request applied", "books", res.BooksProcessed, "version", res.Version)
		return nil
	}
	snap, err := ctrl.Update(ctx, req.BookID)
	if err != nil {
		return err
	}
	logger.Info("index request applied", "book_id", req.BookID, "version", snap.Version)
	return nil
}

// Reloader is the part of *indexer.Replica the announcement consumer drives.
type Reloader interface {
	ReloadIfBehind(version uint64) (bool, error)
}

// HandleSnapshotPublished returns a handler for the snapshot announcement
// topic.
func HandleSnapshotPublished(r Reloader) kafka.MessageHandler {
	logger := slog.Default().With("component", "snapshot-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[indexer.SnapshotPublished](value)
		if err != nil {
			logger.Error("failed to decode snapshot announcement", "error", err, "key", string(key))
			return nil
		}
		reloaded, err := r.ReloadIfBehind(event.Version)
		if err != nil {
			return fmt.Errorf("reloading snapshot %d: %w", event.Version, err)
		}
		logger.Debug("snapshot announcement handled", "version", event.Version, "reloaded", reloaded)
		return nil
	}
}
