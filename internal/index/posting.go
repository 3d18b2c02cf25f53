package index

import (
	"iter"
	"maps"
	"slices"
)

// Posting records how often a term occurs in one book.
type Posting struct {
	DocID     uint32 `json:"id"`
	Frequency int    `json:"tf"`
}

// PostingList is sorted by DocID ascending with no duplicate ids.
type PostingList []Posting

// TermEntry pairs a term with its postings.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// TermCounts maps a term to its frequency in one document. Non-positive
// counts are ignored.
type TermCounts map[string]int

// Document is a book id and the term sequence of its current body.
type Document struct {
	ID    uint32
	Terms iter.Seq[string]
}

// CountTerms consumes terms and returns their frequencies.
func CountTerms(terms iter.Seq[string]) TermCounts {
	counts := make(TermCounts)
	if terms == nil {
		return counts
	}
	for term := range terms {
		counts[term]++
	}
	return counts
}

// Unique returns the number of distinct terms with a positive count.
func (c TermCounts) Unique() int {
	n := 0
	for _, freq := range c {
		if freq > 0 {
			n++
		}
	}
	return n
}

// sortedTerms returns the terms with a positive count in ascending order.
func (c TermCounts) sortedTerms() []string {
	terms := make([]string, 0, len(c))
	for term, freq := range c {
		if freq > 0 {
			terms = append(terms, term)
		}
	}
	slices.Sort(terms)
	return terms
}

// find returns the position of id in the list, or where it would be
// inserted.
func (pl PostingList) find(id uint32) (int, bool) {
	return slices.BinarySearchFunc(pl, id, func(p Posting, target uint32) int {
		switch {
		case p.DocID < target:
			return -1
		case p.DocID > target:
			return 1
		}
		return 0
	})
}

// Frequency returns the frequency recorded for id, or 0.
func (pl PostingList) Frequency(id uint32) int {
	if i, ok := pl.find(id); ok {
		return pl[i].Frequency
	}
	return 0
}

// with returns a copy of pl with id removed and, when freq is positive,
// a posting for id inserted at its sorted position.
func (pl PostingList) with(id uint32, freq int) PostingList {
	out := make(PostingList, 0, len(pl)+1)
	i, found := pl.find(id)
	out = append(out, pl[:i]...)
	if freq > 0 {
		out = append(out, Posting{DocID: id, Frequency: freq})
	}
	rest := pl[i:]
	if found {
		rest = rest[1:]
	}
	return append(out, rest...)
}

func sortedIDs[V any](m map[uint32]V) []uint32 {
	return slices.Sorted(maps.Keys(m))
}
