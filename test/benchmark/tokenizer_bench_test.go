package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "It is a truth universally acknowledged, that a single man in possession of a good fortune, must be in want of a wife.",
	"medium": `Call me Ishmael. Some years ago, never mind how long precisely, having
        little or no money in my purse, and nothing particular to interest me on
        shore, I thought I would sail about a little and see the watery part of
        the world. It is a way I have of driving off the spleen and regulating
        the circulation.`,
	"accented": strings.Repeat("Les Misérables: « Tant qu'il existera, par le fait des lois et des mœurs, une damnation sociale… » Straße, Ægir, naïveté. ", 10),
	"long": strings.Repeat(`It was the best of times, it was the worst of times, it was the age of
        wisdom, it was the age of foolishness, it was the epoch of belief, it was
        the epoch of incredulity, it was the season of Light, it was the season of
        Darkness, it was the spring of hope, it was the winter of despair. `, 50),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}

// BenchmarkTermsStream measures the iterator path the indexer uses, which
// never materialises the token slice.
func BenchmarkTermsStream(b *testing.B) {
	text := sampleTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for b.Loop() {
		n := 0
		for range tokenizer.Terms(text) {
			n++
		}
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Tokenize(text)
		}
	})
}
