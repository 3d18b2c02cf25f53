package docstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/redis"
	"github.com/stretchr/testify/suite"
)

// catalogSuite runs the same behaviour checks against every backend.
type catalogSuite struct {
	suite.Suite
	open    func() Catalog
	cleanup func()
	catalog Catalog
}

func (s *catalogSuite) SetupTest() {
	s.catalog = s.open()
}

func (s *catalogSuite) TearDownTest() {
	s.NoError(s.catalog.Close())
	if s.cleanup != nil {
		s.cleanup()
	}
}

func year(y int) *int { return &y }

func (s *catalogSuite) TestPutAndGet() {
	ctx := context.Background()
	meta := Metadata{ID: 1342, Title: "Pride and Prejudice", Author: "Jane Austen", Language: "en", Year: year(1813), WordCount: 122189, UniqueWords: 6538}
	s.Require().NoError(s.catalog.Put(ctx, meta))

	got, err := s.catalog.Metadata(ctx, 1342)
	s.Require().NoError(err)
	s.Equal(meta, got)
}

func (s *catalogSuite) TestPutOverwrites() {
	ctx := context.Background()
	s.Require().NoError(s.catalog.Put(ctx, Metadata{ID: 5, Title: "Draft", Language: "en", Year: year(1900)}))
	s.Require().NoError(s.catalog.Put(ctx, Metadata{ID: 5, Title: "Final", Language: "fr"}))

	got, err := s.catalog.Metadata(ctx, 5)
	s.Require().NoError(err)
	s.Equal("Final", got.Title)
	s.Equal("fr", got.Language)
	s.Nil(got.Year)
}

func (s *catalogSuite) TestMissingBook() {
	_, err := s.catalog.Metadata(context.Background(), 404)
	s.ErrorIs(err, apperrors.ErrDocumentNotFound)
}

func (s *catalogSuite) TestMetadataBatch() {
	ctx := context.Background()
	for _, id := range []uint32{1, 2, 3} {
		s.Require().NoError(s.catalog.Put(ctx, Metadata{ID: id, Language: "en"}))
	}
	got, err := s.catalog.MetadataBatch(ctx, []uint32{3, 1, 99})
	s.Require().NoError(err)
	s.Len(got, 2)
	s.Equal(uint32(3), got[3].ID)
	s.Equal(uint32(1), got[1].ID)

	empty, err := s.catalog.MetadataBatch(ctx, nil)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *catalogSuite) TestPing() {
	s.NoError(s.catalog.Ping(context.Background()))
}

func TestMemoryCatalog(t *testing.T) {
	suite.Run(t, &catalogSuite{open: func() Catalog { return NewMemoryCatalog() }})
}

func TestBoltCatalog(t *testing.T) {
	suite.Run(t, &catalogSuite{open: func() Catalog {
		cat, err := OpenBoltCatalog(filepath.Join(t.TempDir(), "nested", "catalog.db"))
		if err != nil {
			t.Fatalf("opening bolt catalog: %v", err)
		}
		return cat
	}})
}

// fakeKV is an in-process stand-in for the redis client.
type fakeKV struct {
	mu     sync.Mutex
	values map[string]string
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return nil
}

func (f *fakeKV) MGet(_ context.Context, keys ...string) ([]string, []bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values := make([]string, len(keys))
	ok := make([]bool, len(keys))
	for i, k := range keys {
		values[i], ok[i] = f.values[k]
	}
	return values, ok, nil
}

func (f *fakeKV) Ping(context.Context) error { return nil }
func (f *fakeKV) Close() error               { return nil }

func TestRedisCatalogWithFake(t *testing.T) {
	suite.Run(t, &catalogSuite{open: func() Catalog {
		return NewRedisCatalog(&fakeKV{values: make(map[string]string)})
	}})
}

func TestRedisCatalogKeys(t *testing.T) {
	kv := &fakeKV{values: make(map[string]string)}
	cat := NewRedisCatalog(kv)
	if err := cat.Put(context.Background(), Metadata{ID: 84, Title: "Frankenstein"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := kv.values["book:84:metadata"]; !ok {
		t.Fatalf("expected book:84:metadata key, have %v", kv.values)
	}
}

// TestPostgresCatalog needs a database; set BS_TEST_POSTGRES_DSN to run it.
func TestPostgresCatalog(t *testing.T) {
	dsn := os.Getenv("BS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BS_TEST_POSTGRES_DSN not set")
	}
	truncate := func() {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			t.Fatalf("opening postgres: %v", err)
		}
		defer db.Close()
		db.Exec("DELETE FROM books")
	}
	suite.Run(t, &catalogSuite{
		open: func() Catalog {
			db, err := sql.Open("postgres", dsn)
			if err != nil {
				t.Fatalf("opening postgres: %v", err)
			}
			cat, err := NewPostgresCatalog(context.Background(), &postgres.Client{DB: db})
			if err != nil {
				t.Fatalf("creating catalog: %v", err)
			}
			truncate()
			return cat
		},
		cleanup: truncate,
	})
}

// TestRedisCatalogLive needs a server; set BS_TEST_REDIS_ADDR to run it.
func TestRedisCatalogLive(t *testing.T) {
	addr := os.Getenv("BS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BS_TEST_REDIS_ADDR not set")
	}
	suite.Run(t, &catalogSuite{open: func() Catalog {
		client, err := redis.NewClient(context.Background(), config.RedisConfig{Addr: addr})
		if err != nil {
			t.Fatalf("connecting to redis: %v", err)
		}
		client.FlushByPattern(context.Background(), "book:*:metadata")
		return NewRedisCatalog(client)
	}})
}
