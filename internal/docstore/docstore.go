// Package docstore provides access to the raw books the search engine
// indexes and to the catalog of metadata recorded for indexed books.
//
// A Store is the source of truth written by the acquisition service: header
// and body text per book id. A Catalog holds the metadata of the version of
// each book that was last indexed; the query engine filters against it.
package docstore

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// Metadata describes one book. WordCount and UniqueWords are filled in when
// the book is indexed.
type Metadata struct {
	ID          uint32 `json:"book_id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Language    string `json:"language"`
	Year        *int   `json:"year,omitempty"`
	Path        string `json:"path,omitempty"`
	WordCount   int    `json:"word_count"`
	UniqueWords int    `json:"unique_words"`
}

// Store reads books. Metadata and Body return an error wrapping
// ErrDocumentNotFound for an unknown id or a book missing its header or
// body, and ErrUnreadable when the content exists but cannot be read.
type Store interface {
	Metadata(ctx context.Context, id uint32) (Metadata, error)
	Body(ctx context.Context, id uint32) (string, error)
	ListIDs(ctx context.Context) ([]uint32, error)
}

// MetadataReader looks up the metadata of a single book.
type MetadataReader interface {
	Metadata(ctx context.Context, id uint32) (Metadata, error)
}

// BatchReader looks up several books at once. Ids with no entry are absent
// from the result.
type BatchReader interface {
	MetadataBatch(ctx context.Context, ids []uint32) (map[uint32]Metadata, error)
}

// Catalog records the metadata of indexed books.
type Catalog interface {
	MetadataReader
	BatchReader
	Put(ctx context.Context, meta Metadata) error
	Ping(ctx context.Context) error
	Close() error
}

const DefaultLanguage = "en"

var (
	titleRe    = regexp.MustCompile(`(?i)title:\s*(.+)`)
	authorRe   = regexp.MustCompile(`(?i)author:\s*(.+)`)
	languageRe = regexp.MustCompile(`(?i)language:\s*(.+)`)
	yearRe     = regexp.MustCompile(`(?i)(?:release date|posting date|release|date):\s*.*?(\d{4})`)
)

// ParseHeader extracts metadata from a Project Gutenberg header. Missing
// fields stay empty; the language is normalised to its ISO code and defaults
// to DefaultLanguage.
func ParseHeader(id uint32, header string) Metadata {
	meta := Metadata{
		ID:       id,
		Title:    firstMatch(titleRe, header),
		Author:   firstMatch(authorRe, header),
		Language: NormalizeLanguage(firstMatch(languageRe, header)),
	}
	if meta.Language == "" {
		meta.Language = DefaultLanguage
	}
	if y := firstMatch(yearRe, header); y != "" {
		if year, err := strconv.Atoi(y); err == nil {
			meta.Year = &year
		}
	}
	return meta
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

const (
	gutenbergStart = "*** START OF THE PROJECT GUTENBERG EBOOK"
	gutenbergEnd   = "*** END OF THE PROJECT GUTENBERG EBOOK"
)

// SplitGutenberg separates a raw Project Gutenberg download into header and
// body. The body starts on the line after the start marker and stops before
// the end marker. Text without both markers is returned whole as the header
// with an empty body.
func SplitGutenberg(text string) (header, body string) {
	start := strings.Index(text, gutenbergStart)
	if start < 0 {
		return text, ""
	}
	end := strings.Index(text, gutenbergEnd)
	if end < 0 {
		return text, ""
	}
	bodyStart := start
	if nl := strings.IndexByte(text[start:], '\n'); nl >= 0 {
		bodyStart = start + nl + 1
	}
	if bodyStart > end {
		return text[:start], ""
	}
	return text[:start], text[bodyStart:end]
}

// WordCount counts whitespace separated words.
func WordCount(body string) int {
	return len(strings.Fields(body))
}
