package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/postgres"
	"github.com/lib/pq"
)

const createBooksTable = `
CREATE TABLE IF NOT EXISTS books (
	book_id      INTEGER PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	author       TEXT NOT NULL DEFAULT '',
	language     VARCHAR(16) NOT NULL DEFAULT 'en',
	year         INTEGER,
	path         TEXT NOT NULL DEFAULT '',
	word_count   INTEGER NOT NULL DEFAULT 0,
	unique_words INTEGER NOT NULL DEFAULT 0,
	indexed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const selectBooks = `SELECT book_id, title, author, language, year, path, word_count, unique_words FROM books`

// PostgresCatalog keeps metadata in the books table.
type PostgresCatalog struct {
	client *postgres.Client
	db     *sql.DB
}

// NewPostgresCatalog creates the books table if needed. The catalog takes
// ownership of client and closes it on Close.
func NewPostgresCatalog(ctx context.Context, client *postgres.Client) (*PostgresCatalog, error) {
	if _, err := client.DB.ExecContext(ctx, createBooksTable); err != nil {
		return nil, fmt.Errorf("creating books table: %w", err)
	}
	return &PostgresCatalog{client: client, db: client.DB}, nil
}

func (c *PostgresCatalog) Put(ctx context.Context, meta Metadata) error {
	var year sql.NullInt64
	if meta.Year != nil {
		year = sql.NullInt64{Int64: int64(*meta.Year), Valid: true}
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO books (book_id, title, author, language, year, path, word_count, unique_words)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (book_id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			language = EXCLUDED.language,
			year = EXCLUDED.year,
			path = EXCLUDED.path,
			word_count = EXCLUDED.word_count,
			unique_words = EXCLUDED.unique_words,
			indexed_at = NOW()`,
		int64(meta.ID), meta.Title, meta.Author, meta.Language, year, meta.Path, meta.WordCount, meta.UniqueWords)
	if err != nil {
		return fmt.Errorf("upserting book %d: %w", meta.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row rowScanner) (Metadata, error) {
	var (
		meta Metadata
		id   int64
		year sql.NullInt64
	)
	if err := row.Scan(&id, &meta.Title, &meta.Author, &meta.Language, &year, &meta.Path, &meta.WordCount, &meta.UniqueWords); err != nil {
		return Metadata{}, err
	}
	meta.ID = uint32(id)
	if year.Valid {
		y := int(year.Int64)
		meta.Year = &y
	}
	return meta, nil
}

func (c *PostgresCatalog) Metadata(ctx context.Context, id uint32) (Metadata, error) {
	meta, err := scanMetadata(c.db.QueryRowContext(ctx, selectBooks+` WHERE book_id = $1`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, apperrors.Newf(apperrors.ErrDocumentNotFound, 0, "book %d not catalogued", id)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("querying book %d: %w", id, err)
	}
	return meta, nil
}

func (c *PostgresCatalog) MetadataBatch(ctx context.Context, ids []uint32) (map[uint32]Metadata, error) {
	out := make(map[uint32]Metadata, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}
	rows, err := c.db.QueryContext(ctx, selectBooks+` WHERE book_id = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("querying books: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		out[meta.ID] = meta
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

func (c *PostgresCatalog) Close() error {
	return c.client.Close()
}
