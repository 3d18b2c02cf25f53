// Package ranker scores documents against a set of posting lists and orders
// them deterministically.
package ranker

import (
	"cmp"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index"
)

// ScoredDoc is a candidate document with its relevance score: the sum of
// the frequencies of the matched query terms in it.
type ScoredDoc struct {
	DocID   uint32
	Score   int
	Matched int
}

// Score accumulates one ScoredDoc per document appearing in any of lists.
// With requireAll set, only documents present in every list are kept; an
// empty list then yields no results.
func Score(lists []index.PostingList, requireAll bool) []ScoredDoc {
	if len(lists) == 0 {
		return nil
	}
	acc := make(map[uint32]*ScoredDoc)
	for _, pl := range lists {
		for _, p := range pl {
			d, ok := acc[p.DocID]
			if !ok {
				d = &ScoredDoc{DocID: p.DocID}
				acc[p.DocID] = d
			}
			d.Score += p.Frequency
			d.Matched++
		}
	}
	out := make([]ScoredDoc, 0, len(acc))
	for _, d := range acc {
		if requireAll && d.Matched < len(lists) {
			continue
		}
		out = append(out, *d)
	}
	Sort(out)
	return out
}

// Sort orders docs by descending score, then ascending document id.
func Sort(docs []ScoredDoc) {
	slices.SortFunc(docs, func(a, b ScoredDoc) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.DocID, b.DocID)
	})
}
