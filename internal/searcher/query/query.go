// Package query turns raw search request values into a normalised query:
// deduplicated terms, typed filters and the match policy they are applied with.
package query

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
)

// Query is a parsed search request.
type Query struct {
	Text    string
	Terms   []string
	Filters Filters
}

// Parse tokenises text with the indexing tokenizer. A term repeated in the
// query counts once; Terms keeps first-appearance order.
func Parse(text string, filters Filters) Query {
	q := Query{Text: text, Filters: filters}
	seen := make(map[string]struct{})
	for term := range tokenizer.Terms(text) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		q.Terms = append(q.Terms, term)
	}
	return q
}

// Empty reports whether the query has no searchable terms.
func (q Query) Empty() bool {
	return len(q.Terms) == 0
}

// Filters restrict results by catalog metadata. Zero values mean "no filter".
type Filters struct {
	Author   string
	Language string
	Year     *int

	// raw holds the request values as sent, for Echo.
	raw map[string]string
}

// ParseFilters builds Filters from request values. Blank values are ignored.
// A year that is not an integer is a bad filter, not an empty result.
func ParseFilters(author, language, year string) (Filters, error) {
	f := Filters{
		Author: strings.TrimSpace(author),
		raw:    make(map[string]string, 3),
	}
	for name, v := range map[string]string{"author": author, "language": language, "year": year} {
		if strings.TrimSpace(v) != "" {
			f.raw[name] = v
		}
	}
	if lang := strings.TrimSpace(language); lang != "" {
		f.Language = docstore.NormalizeLanguage(lang)
	}
	if y := strings.TrimSpace(year); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			return Filters{}, apperrors.Newf(apperrors.ErrBadFilter, 0, "year %q is not a number", year)
		}
		f.Year = &n
	}
	return f, nil
}

// Echo returns the filters that are set, keyed by request parameter name.
// Filters from ParseFilters echo the values exactly as the caller sent them.
func (f Filters) Echo() map[string]string {
	if f.raw != nil {
		return maps.Clone(f.raw)
	}
	echo := make(map[string]string, 3)
	if f.Author != "" {
		echo["author"] = f.Author
	}
	if f.Language != "" {
		echo["language"] = f.Language
	}
	if f.Year != nil {
		echo["year"] = strconv.Itoa(*f.Year)
	}
	return echo
}

// Policy selects how author filters and multiple query terms match.
type Policy struct {
	AuthorMatch string
	TermMode    string
}

// DefaultPolicy matches authors exactly and accepts documents containing any
// query term.
func DefaultPolicy() Policy {
	return Policy{AuthorMatch: config.AuthorMatchExact, TermMode: config.TermModeOr}
}

// PolicyFrom reads the policy from search configuration, falling back to the
// defaults for blank values.
func PolicyFrom(cfg config.SearchConfig) Policy {
	p := DefaultPolicy()
	if cfg.AuthorMatch != "" {
		p.AuthorMatch = cfg.AuthorMatch
	}
	if cfg.TermMode != "" {
		p.TermMode = cfg.TermMode
	}
	return p
}

// RequireAll reports whether every query term must be present.
func (p Policy) RequireAll() bool {
	return p.TermMode == config.TermModeAnd
}

// Match reports whether meta passes every filter in f.
func (p Policy) Match(f Filters, meta docstore.Metadata) bool {
	if f.Author != "" && !p.matchAuthor(f.Author, meta.Author) {
		return false
	}
	if f.Language != "" && !strings.EqualFold(f.Language, meta.Language) {
		return false
	}
	if f.Year != nil && (meta.Year == nil || *meta.Year != *f.Year) {
		return false
	}
	return true
}

func (p Policy) matchAuthor(want, have string) bool {
	fold := cases.Fold()
	want = fold.String(strings.TrimSpace(want))
	have = fold.String(strings.TrimSpace(have))
	if p.AuthorMatch == config.AuthorMatchSubstring {
		return strings.Contains(have, want)
	}
	return want == have
}

// CacheKey renders everything that determines a result set, independent of
// term order.
func (q Query) CacheKey(p Policy, limit int) string {
	terms := slices.Clone(q.Terms)
	slices.Sort(terms)
	var b strings.Builder
	b.WriteString(p.TermMode)
	b.WriteByte('|')
	b.WriteString(p.AuthorMatch)
	b.WriteByte('|')
	b.WriteString(strings.Join(terms, ","))
	b.WriteString("|author=")
	b.WriteString(cases.Fold().String(q.Filters.Author))
	b.WriteString("|language=")
	b.WriteString(strings.ToLower(q.Filters.Language))
	b.WriteString("|year=")
	if q.Filters.Year != nil {
		b.WriteString(strconv.Itoa(*q.Filters.Year))
	}
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(limit))
	return b.String()
}
