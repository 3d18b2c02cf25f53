// Package publisher writes books into the datalake and asks the indexer to
// index them. Books are either uploaded by the caller or fetched from the
// configured source.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/resilience"
)

// Notifier sends index requests, typically a kafka producer on the index
// request topic.
type Notifier interface {
	Publish(ctx context.Context, key string, value any) error
}

type Publisher struct {
	lake     *docstore.Datalake
	fetcher  Fetcher
	notifier Notifier
	maxBody  int64
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Publisher. fetcher and notifier may be nil: without a
// fetcher only uploads are accepted, without a notifier nothing is indexed
// until the next rebuild.
func New(lake *docstore.Datalake, fetcher Fetcher, notifier Notifier, maxBody int64) *Publisher {
	return &Publisher{
		lake:     lake,
		fetcher:  fetcher,
		notifier: notifier,
		maxBody:  maxBody,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest stores book id. With empty text a book already in the datalake is
// kept as is, otherwise it is fetched. Either way an index request is sent.
func (p *Publisher) Ingest(ctx context.Context, id uint32, text string) (*ingestion.IngestResponse, error) {
	if text == "" {
		dir, err := p.lake.Locate(ctx, id)
		if err == nil {
			p.logger.Info("book already in datalake, skipping fetch", "book_id", id, "dir", dir)
			return &ingestion.IngestResponse{
				BookID:         id,
				Status:         ingestion.StatusExisting,
				Path:           dir,
				IndexRequested: p.requestIndex(ctx, id),
			}, nil
		}
		if !errors.Is(err, apperrors.ErrDocumentNotFound) {
			return nil, err
		}
		if p.fetcher == nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, 0, "book %d: no text given and fetching is disabled", id)
		}
		text, err = p.fetcher.Fetch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetching book %d: %w", id, err)
		}
	}

	header, body := docstore.SplitGutenberg(text)
	if err := validator.ValidateBook(id, header, body, p.maxBody); err != nil {
		return nil, err
	}
	dir, err := p.lake.Put(id, header, body, p.now())
	if err != nil {
		return nil, fmt.Errorf("storing book %d: %w", id, err)
	}
	meta := docstore.ParseHeader(id, header)
	p.logger.Info("book stored", "book_id", id, "title", meta.Title, "dir", dir, "body_bytes", len(body))

	return &ingestion.IngestResponse{
		BookID:         id,
		Status:         ingestion.StatusStored,
		Path:           dir,
		Title:          meta.Title,
		IndexRequested: p.requestIndex(ctx, id),
	}, nil
}

func (p *Publisher) requestIndex(ctx context.Context, id uint32) bool {
	if p.notifier == nil {
		return false
	}
	req := indexer.IndexRequest{Action: indexer.ActionUpdate, BookID: id}
	err := resilience.Retry(ctx, "request index", resilience.RetryConfig{MaxAttempts: 3}, func(ctx context.Context) error {
		return p.notifier.Publish(ctx, strconv.FormatUint(uint64(id), 10), req)
	})
	if err != nil {
		// The book is stored; a rebuild will still pick it up.
		p.logger.Error("index request failed", "book_id", id, "error", err)
		return false
	}
	return true
}

// Status reports whether id is complete in the datalake.
func (p *Publisher) Status(ctx context.Context, id uint32) (ingestion.StatusResponse, error) {
	_, err := p.lake.Locate(ctx, id)
	switch {
	case err == nil:
		return ingestion.StatusResponse{BookID: id, Status: ingestion.StatusAvailable}, nil
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		return ingestion.StatusResponse{BookID: id, Status: ingestion.StatusNotFound}, nil
	default:
		return ingestion.StatusResponse{}, err
	}
}

func (p *Publisher) List(ctx context.Context) (ingestion.ListResponse, error) {
	ids, err := p.lake.ListIDs(ctx)
	if err != nil {
		return ingestion.ListResponse{}, err
	}
	if ids == nil {
		ids = []uint32{}
	}
	return ingestion.ListResponse{Count: len(ids), Books: ids}, nil
}
