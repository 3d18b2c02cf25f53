// Package index implements the immutable inverted index. Every operation
// that changes content returns a new *Index and leaves its receiver
// untouched, so a published index can be read by any number of goroutines
// without locking while a writer derives the next version.
package index

import (
	"fmt"
	"iter"
	"slices"
)

// Index maps a normalised term to its posting list. It also remembers the
// terms of every indexed book so an update can drop stale postings without
// scanning the whole dictionary.
type Index struct {
	terms *dict[string, PostingList]
	docs  *dict[uint32, []string]
}

// Empty returns an index with no books.
func Empty() *Index {
	return &Index{terms: newTermDict(), docs: newDocDict()}
}

// Build constructs an index from documents. When an id appears more than
// once the last occurrence wins.
func Build(documents iter.Seq[Document]) *Index {
	counts := make(map[uint32]TermCounts)
	for doc := range documents {
		counts[doc.ID] = CountTerms(doc.Terms)
	}
	return BuildCounted(counts)
}

// BuildCounted constructs an index from per-book term counts. A book with no
// terms is still recorded as indexed.
func BuildCounted(books map[uint32]TermCounts) *Index {
	ix := Empty()
	for _, id := range sortedIDs(books) {
		counts := books[id]
		docTerms := counts.sortedTerms()
		for _, term := range docTerms {
			pl, _ := ix.terms.get(term)
			ix.terms.set(term, append(pl, Posting{DocID: id, Frequency: counts[term]}))
		}
		ix.docs.set(id, docTerms)
	}
	return ix
}

// MergeOne returns a new index in which id reflects exactly the given terms.
func (ix *Index) MergeOne(id uint32, terms iter.Seq[string]) *Index {
	return ix.MergeCounted(id, CountTerms(terms))
}

// MergeCounted is MergeOne with precomputed counts. Only the posting lists
// of terms the book had before or has now are copied, along with the
// dictionary shards holding them; everything else is shared with the
// receiver.
func (ix *Index) MergeCounted(id uint32, counts TermCounts) *Index {
	next := &Index{terms: ix.terms.derive(), docs: ix.docs.derive()}

	prev, _ := ix.docs.get(id)
	for _, term := range prev {
		if counts[term] > 0 {
			continue
		}
		pl, _ := next.terms.get(term)
		if pl = pl.with(id, 0); len(pl) > 0 {
			next.terms.set(term, pl)
		} else {
			next.terms.del(term)
		}
	}
	docTerms := counts.sortedTerms()
	for _, term := range docTerms {
		pl, _ := next.terms.get(term)
		next.terms.set(term, pl.with(id, counts[term]))
	}
	next.docs.set(id, docTerms)
	return next
}

// Lookup returns the postings for term, or nil. The returned list is shared
// and must not be modified.
func (ix *Index) Lookup(term string) PostingList {
	pl, _ := ix.terms.get(term)
	return pl
}

// DocCount returns the number of indexed books, including books without
// terms.
func (ix *Index) DocCount() int {
	return ix.docs.len()
}

// TermCount returns the number of distinct terms.
func (ix *Index) TermCount() int {
	return ix.terms.len()
}

// Contains reports whether id has been indexed.
func (ix *Index) Contains(id uint32) bool {
	_, ok := ix.docs.get(id)
	return ok
}

// DocIDs returns the indexed book ids in ascending order.
func (ix *Index) DocIDs() []uint32 {
	return slices.Sorted(ix.docs.keys())
}

// Entries returns every term with its postings, sorted by term. Two indexes
// with equal Entries and DocIDs hold the same content.
func (ix *Index) Entries() []TermEntry {
	terms := slices.Sorted(ix.terms.keys())
	entries := make([]TermEntry, 0, len(terms))
	for _, term := range terms {
		entries = append(entries, TermEntry{Term: term, Postings: ix.Lookup(term)})
	}
	return entries
}

// FromEntries rebuilds an index from persisted content, validating that
// terms are unique, postings are sorted with positive frequencies, and every
// posting refers to one of docIDs.
func FromEntries(entries []TermEntry, docIDs []uint32) (*Index, error) {
	ix := Empty()
	for _, id := range docIDs {
		if _, dup := ix.docs.get(id); dup {
			return nil, fmt.Errorf("duplicate book id %d", id)
		}
		ix.docs.set(id, nil)
	}
	for _, entry := range entries {
		if entry.Term == "" {
			return nil, fmt.Errorf("empty term")
		}
		if _, dup := ix.terms.get(entry.Term); dup {
			return nil, fmt.Errorf("duplicate term %q", entry.Term)
		}
		if len(entry.Postings) == 0 {
			return nil, fmt.Errorf("term %q has no postings", entry.Term)
		}
		for i, p := range entry.Postings {
			if p.Frequency <= 0 {
				return nil, fmt.Errorf("term %q: book %d has frequency %d", entry.Term, p.DocID, p.Frequency)
			}
			if i > 0 && entry.Postings[i-1].DocID >= p.DocID {
				return nil, fmt.Errorf("term %q: postings not strictly ascending at book %d", entry.Term, p.DocID)
			}
			docTerms, ok := ix.docs.get(p.DocID)
			if !ok {
				return nil, fmt.Errorf("term %q: book %d is not in the document table", entry.Term, p.DocID)
			}
			ix.docs.set(p.DocID, append(docTerms, entry.Term))
		}
		ix.terms.set(entry.Term, slices.Clone(entry.Postings))
	}
	for _, terms := range ix.docs.all() {
		slices.Sort(terms)
	}
	return ix, nil
}
