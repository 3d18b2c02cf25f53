package docstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
)

type memoryBook struct {
	meta Metadata
	body string
	err  error
}

// MemoryStore is an in-process Store used by tests and benchmarks.
type MemoryStore struct {
	mu    sync.RWMutex
	books map[uint32]memoryBook
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{books: make(map[uint32]memoryBook)}
}

// Put adds or replaces a book.
func (s *MemoryStore) Put(meta Metadata, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta.Language == "" {
		meta.Language = DefaultLanguage
	}
	s.books[meta.ID] = memoryBook{meta: meta, body: body}
}

// Fail makes every read of id return err until the book is Put again.
func (s *MemoryStore) Fail(id uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.books[id]
	b.meta.ID = id
	b.err = err
	s.books[id] = b
}

func (s *MemoryStore) Delete(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
}

func (s *MemoryStore) get(ctx context.Context, id uint32) (memoryBook, error) {
	if err := ctx.Err(); err != nil {
		return memoryBook{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return memoryBook{}, apperrors.Newf(apperrors.ErrDocumentNotFound, 0, "book %d", id)
	}
	if b.err != nil {
		return memoryBook{}, b.err
	}
	return b, nil
}

func (s *MemoryStore) Metadata(ctx context.Context, id uint32) (Metadata, error) {
	b, err := s.get(ctx, id)
	return b.meta, err
}

func (s *MemoryStore) Body(ctx context.Context, id uint32) (string, error) {
	b, err := s.get(ctx, id)
	return b.body, err
}

func (s *MemoryStore) ListIDs(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.books)), nil
}

// MemoryCatalog is an in-process Catalog.
type MemoryCatalog struct {
	mu    sync.RWMutex
	books map[uint32]Metadata
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{books: make(map[uint32]Metadata)}
}

func (c *MemoryCatalog) Put(_ context.Context, meta Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[meta.ID] = meta
	return nil
}

func (c *MemoryCatalog) Metadata(_ context.Context, id uint32) (Metadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.books[id]
	if !ok {
		return Metadata{}, apperrors.Newf(apperrors.ErrDocumentNotFound, 0, "book %d not catalogued", id)
	}
	return meta, nil
}

func (c *MemoryCatalog) MetadataBatch(_ context.Context, ids []uint32) (map[uint32]Metadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uint32]Metadata, len(ids))
	for _, id := range ids {
		if meta, ok := c.books[id]; ok {
			out[id] = meta
		}
	}
	return out, nil
}

func (c *MemoryCatalog) Ping(context.Context) error { return nil }

func (c *MemoryCatalog) Close() error { return nil }
