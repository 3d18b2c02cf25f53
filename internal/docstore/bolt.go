package docstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/boltdb/bolt"
)

var booksBucket = []byte("books")

// BoltCatalog keeps metadata in a local bolt file, keyed by big endian book
// id with JSON values.
type BoltCatalog struct {
	db *bolt.DB
}

// OpenBoltCatalog opens or creates the catalog file at path.
func OpenBoltCatalog(path string) (*BoltCatalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt catalog %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(booksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating books bucket: %w", err)
	}
	return &BoltCatalog{db: db}, nil
}

func boltKey(id uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, id)
	return k
}

func (c *BoltCatalog) Put(_ context.Context, meta Metadata) error {
	value, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(booksBucket).Put(boltKey(meta.ID), value)
	})
}

func (c *BoltCatalog) Metadata(_ context.Context, id uint32) (Metadata, error) {
	var meta Metadata
	err := c.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(booksBucket).Get(boltKey(id))
		if value == nil {
			return apperrors.Newf(apperrors.ErrDocumentNotFound, 0, "book %d not catalogued", id)
		}
		return json.Unmarshal(value, &meta)
	})
	return meta, err
}

// MetadataBatch reads all ids in one read transaction.
func (c *BoltCatalog) MetadataBatch(_ context.Context, ids []uint32) (map[uint32]Metadata, error) {
	out := make(map[uint32]Metadata, len(ids))
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(booksBucket)
		for _, id := range ids {
			value := b.Get(boltKey(id))
			if value == nil {
				continue
			}
			var meta Metadata
			if err := json.Unmarshal(value, &meta); err != nil {
				return fmt.Errorf("decoding metadata of book %d: %w", id, err)
			}
			out[id] = meta
		}
		return nil
	})
	return out, err
}

func (c *BoltCatalog) Ping(context.Context) error {
	return c.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(booksBucket) == nil {
			return fmt.Errorf("books bucket missing")
		}
		return nil
	})
}

func (c *BoltCatalog) Close() error {
	return c.db.Close()
}
