package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
)

func BenchmarkQueryParse(b *testing.B) {
	queries := map[string]string{
		"single":     "whale",
		"phrase":     "It is a truth universally acknowledged",
		"duplicates": "sea sea SEA whale Whale",
	}
	for name, text := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = query.Parse(text, query.Filters{})
			}
		})
	}
}

func BenchmarkScore(b *testing.B) {
	for _, numDocs := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			lists := make([]index.PostingList, 3)
			for t := range lists {
				pl := make(index.PostingList, 0, numDocs)
				for i := t; i < numDocs; i += t + 1 {
					pl = append(pl, index.Posting{DocID: uint32(i + 1), Frequency: i%10 + 1})
				}
				lists[t] = pl
			}
			b.ReportAllocs()
			for b.Loop() {
				_ = ranker.Score(lists, false)
			}
		})
	}
}

func newSearchFixture(b *testing.B, books int) *executor.Executor {
	b.Helper()
	store := docstore.NewMemoryStore()
	catalog := docstore.NewMemoryCatalog()
	for i := range books {
		y := 1800 + i%120
		store.Put(docstore.Metadata{
			ID:     uint32(i + 1),
			Title:  fmt.Sprintf("Book %d", i+1),
			Author: fmt.Sprintf("Author %d", i%50),
			Year:   &y,
		}, syntheticBody(i, 300))
	}
	ix := indexer.New(store, config.IndexerConfig{ReadTimeout: time.Second, RebuildWorkers: 8}, indexer.WithCatalog(catalog))
	if _, err := ix.Rebuild(context.Background()); err != nil {
		b.Fatal(err)
	}
	return executor.New(ix, catalog, query.DefaultPolicy(), nil)
}

func BenchmarkSearch(b *testing.B) {
	exec := newSearchFixture(b, 2000)
	ctx := context.Background()
	year := 1813

	cases := map[string]query.Query{
		"one_term":      query.Parse("harpoon", query.Filters{}),
		"three_terms":   query.Parse("whale sea captain", query.Filters{}),
		"author_filter": query.Parse("truth", query.Filters{Author: "Author 7"}),
		"year_filter":   query.Parse("pride prejudice", query.Filters{Year: &year}),
	}
	for name, q := range cases {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := exec.Search(ctx, q, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	exec := newSearchFixture(b, 2000)
	q := query.Parse("whale sea", query.Filters{})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := exec.Search(context.Background(), q, 10); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
