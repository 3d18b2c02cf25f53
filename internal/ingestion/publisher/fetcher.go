package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/resilience"
)

// Fetcher downloads the raw text of a book.
type Fetcher interface {
	Fetch(ctx context.Context, id uint32) (string, error)
}

// HTTPFetcher downloads plain-text books from a URL pattern such as
// Project Gutenberg's cache.
type HTTPFetcher struct {
	client    *http.Client
	sourceURL string
	timeout   time.Duration
	maxBytes  int64
}

func NewHTTPFetcher(cfg config.IngestionConfig) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{},
		sourceURL: cfg.SourceURL,
		timeout:   cfg.FetchTimeout,
		maxBytes:  cfg.MaxBookBytes,
	}
}

func (f *HTTPFetcher) url(id uint32) string {
	args := make([]any, strings.Count(f.sourceURL, "%d"))
	for i := range args {
		args[i] = id
	}
	return fmt.Sprintf(f.sourceURL, args...)
}

// Fetch retries transient failures. A 404 is reported as
// ErrDocumentNotFound and not retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, id uint32) (string, error) {
	var text string
	retry := resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		Retryable: func(err error) bool {
			return !errors.Is(err, apperrors.ErrDocumentNotFound) && !errors.Is(err, apperrors.ErrInvalidInput)
		},
	}
	err := resilience.Retry(ctx, "fetch book", retry, func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, f.timeout, "fetch book", func(ctx context.Context) error {
			var err error
			text, err = f.fetchOnce(ctx, id)
			return err
		})
	})
	return text, err
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, id uint32) (string, error) {
	url := f.url(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrUnreadable, 0, "fetching book %d: %v", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", apperrors.Newf(apperrors.ErrDocumentNotFound, 0, "book %d: source has no such book", id)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", apperrors.Newf(apperrors.ErrUnreadable, 0, "book %d: source answered %s", id, resp.Status)
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrUnreadable, 0, "reading book %d: %v", id, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "book %d exceeds %d bytes", id, f.maxBytes)
	}
	return string(data), nil
}
