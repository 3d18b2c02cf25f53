// Package benchmark contains Go benchmarks for the tokenizer, the inverted
// index and the search pipeline, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index/segment"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/tokenizer"
)

var vocabulary = []string{
	"whale", "sea", "captain", "ship", "harpoon", "truth", "fortune", "wife",
	"prejudice", "pride", "nautilus", "island", "storm", "letter", "ball", "estate",
}

func syntheticBody(id int, words int) string {
	b := make([]byte, 0, words*8)
	for i := range words {
		b = append(b, vocabulary[(id*7+i*3)%len(vocabulary)]...)
		b = append(b, ' ')
	}
	return string(b)
}

func corpus(n, words int) map[uint32]index.TermCounts {
	books := make(map[uint32]index.TermCounts, n)
	for i := range n {
		books[uint32(i+1)] = index.CountTerms(tokenizer.Terms(syntheticBody(i, words)))
	}
	return books
}

func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		books := corpus(n, 200)
		b.Run(fmt.Sprintf("books_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = index.BuildCounted(books)
			}
		})
	}
}

// BenchmarkMergeOne measures the incremental path: one book replaced in an
// index of n books.
func BenchmarkMergeOne(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		ix := index.BuildCounted(corpus(n, 200))
		counts := index.CountTerms(tokenizer.Terms(syntheticBody(n+1, 200)))
		b.Run(fmt.Sprintf("books_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = ix.MergeCounted(uint32(n/2), counts)
			}
		})
	}
}

func BenchmarkLookupParallel(b *testing.B) {
	ix := index.BuildCounted(corpus(10000, 100))
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = ix.Lookup(vocabulary[i%len(vocabulary)])
			i++
		}
	})
}

func BenchmarkSnapshotWriteLoad(b *testing.B) {
	ix := index.BuildCounted(corpus(2000, 200))
	dir := b.TempDir()
	w := segment.NewWriter(dir)
	var version uint64

	b.Run("write", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			version++
			if _, err := w.Write(segment.Meta{Version: version, PublishedAt: time.Now()}, ix); err != nil {
				b.Fatal(err)
			}
		}
	})

	path := filepath.Join(dir, segment.FileName(version))
	b.Run("load", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			if _, _, err := segment.Read(path); err != nil {
				b.Fatal(err)
			}
		}
	})
}
