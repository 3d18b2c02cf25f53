package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prideHeader = `The Project Gutenberg eBook of Pride and Prejudice

Title: Pride and Prejudice

Author: Jane Austen

Release date: June 1, 1998 [eBook #1342]
                Most recently updated: October 29, 2024

Language: English
`

func TestParseHeader(t *testing.T) {
	meta := ParseHeader(1342, prideHeader)
	assert.Equal(t, uint32(1342), meta.ID)
	assert.Equal(t, "Pride and Prejudice", meta.Title)
	assert.Equal(t, "Jane Austen", meta.Author)
	assert.Equal(t, "en", meta.Language)
	require.NotNil(t, meta.Year)
	assert.Equal(t, 1998, *meta.Year)
}

func TestParseHeaderDefaults(t *testing.T) {
	meta := ParseHeader(7, "no fields at all")
	assert.Equal(t, "", meta.Title)
	assert.Equal(t, "", meta.Author)
	assert.Equal(t, DefaultLanguage, meta.Language)
	assert.Nil(t, meta.Year)
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, "en", NormalizeLanguage("English"))
	assert.Equal(t, "fr", NormalizeLanguage(" french "))
	assert.Equal(t, "de", NormalizeLanguage("de"))
	assert.Equal(t, "en", NormalizeLanguage("EN-GB"))
	assert.Equal(t, "klingon", NormalizeLanguage("Klingon"))
	assert.Equal(t, "la", NormalizeLanguage("Latin"))
	assert.Equal(t, "cy", NormalizeLanguage("Welsh"))
	assert.Equal(t, "", NormalizeLanguage(""))
}

func TestSplitGutenberg(t *testing.T) {
	raw := prideHeader +
		"*** START OF THE PROJECT GUTENBERG EBOOK PRIDE AND PREJUDICE ***\n" +
		"It is a truth universally acknowledged.\n" +
		"*** END OF THE PROJECT GUTENBERG EBOOK PRIDE AND PREJUDICE ***\nlicense"

	header, body := SplitGutenberg(raw)
	assert.Equal(t, prideHeader, header)
	assert.Equal(t, "It is a truth universally acknowledged.\n", body)

	header, body = SplitGutenberg("no markers")
	assert.Equal(t, "no markers", header)
	assert.Empty(t, body)
}

func TestDatalakeRoundTrip(t *testing.T) {
	ctx := context.Background()
	dl := NewDatalake(t.TempDir())
	day := time.Date(2025, 10, 2, 9, 0, 0, 0, time.UTC)

	dir, err := dl.Put(1342, prideHeader, "It is a truth", day)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dl.Root(), "20251002", "42"), dir)

	meta, err := dl.Metadata(ctx, 1342)
	require.NoError(t, err)
	assert.Equal(t, "Jane Austen", meta.Author)
	assert.Equal(t, dir, meta.Path)

	body, err := dl.Body(ctx, 1342)
	require.NoError(t, err)
	assert.Equal(t, "It is a truth", body)
}

func TestDatalakeNewestCopyWins(t *testing.T) {
	ctx := context.Background()
	dl := NewDatalake(t.TempDir())
	_, err := dl.Put(11, "Title: Old", "old body", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = dl.Put(11, "Title: New", "new body", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	body, err := dl.Body(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "new body", body)

	ids, err := dl.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{11}, ids)
}

func TestDatalakeMissingAndIncomplete(t *testing.T) {
	ctx := context.Background()
	dl := NewDatalake(t.TempDir())

	_, err := dl.Body(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	_, err = dl.Put(200, "Title: Whole", "body", time.Now())
	require.NoError(t, err)
	lonely := filepath.Join(dl.Root(), "20240101", "01")
	require.NoError(t, os.MkdirAll(lonely, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lonely, "header_101.txt"), []byte("Title: Half"), 0o644))

	_, err = dl.Metadata(ctx, 101)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	ids, err := dl.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{200}, ids)
}

func TestDatalakeEmptyRoot(t *testing.T) {
	dl := NewDatalake(filepath.Join(t.TempDir(), "absent"))
	ids, err := dl.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDatalakeUnreadableBody(t *testing.T) {
	dl := NewDatalake(t.TempDir())
	dir, err := dl.Put(3, "Title: Dir", "x", time.Now())
	require.NoError(t, err)
	bodyPath := filepath.Join(dir, "body_3.txt")
	require.NoError(t, os.Remove(bodyPath))
	require.NoError(t, os.Mkdir(bodyPath, 0o755))

	// A directory in place of the body is not a complete copy.
	_, err = dl.Body(context.Background(), 3)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestMemoryStoreFailure(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put(Metadata{ID: 1, Title: "Emma"}, "body")
	s.Fail(1, apperrors.New(apperrors.ErrUnreadable, 0, "disk error"))

	_, err := s.Body(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrUnreadable)

	s.Put(Metadata{ID: 1, Title: "Emma"}, "body")
	meta, err := s.Metadata(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, meta.Language)

	ids, err := s.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, ids)
}
