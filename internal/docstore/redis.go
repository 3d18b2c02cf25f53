package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/redis"
)

// KV is the subset of *redis.Client the redis catalog uses.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	MGet(ctx context.Context, keys ...string) ([]string, []bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisCatalog stores each book as JSON under book:<id>:metadata.
type RedisCatalog struct {
	kv KV
}

func NewRedisCatalog(kv KV) *RedisCatalog {
	return &RedisCatalog{kv: kv}
}

func metadataKey(id uint32) string {
	return fmt.Sprintf("book:%d:metadata", id)
}

func (c *RedisCatalog) Put(ctx context.Context, meta Metadata) error {
	value, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := c.kv.Set(ctx, metadataKey(meta.ID), value, 0); err != nil {
		return fmt.Errorf("storing book %d: %w", meta.ID, err)
	}
	return nil
}

func (c *RedisCatalog) Metadata(ctx context.Context, id uint32) (Metadata, error) {
	value, err := c.kv.Get(ctx, metadataKey(id))
	if redis.IsNilError(err) {
		return Metadata{}, apperrors.Newf(apperrors.ErrDocumentNotFound, 0, "book %d not catalogued", id)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("reading book %d: %w", id, err)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(value), &meta); err != nil {
		return Metadata{}, fmt.Errorf("decoding book %d: %w", id, err)
	}
	return meta, nil
}

func (c *RedisCatalog) MetadataBatch(ctx context.Context, ids []uint32) (map[uint32]Metadata, error) {
	out := make(map[uint32]Metadata, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = metadataKey(id)
	}
	values, ok, err := c.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("reading %d books: %w", len(ids), err)
	}
	for i, id := range ids {
		if !ok[i] {
			continue
		}
		var meta Metadata
		if err := json.Unmarshal([]byte(values[i]), &meta); err != nil {
			return nil, fmt.Errorf("decoding book %d: %w", id, err)
		}
		out[id] = meta
	}
	return out, nil
}

func (c *RedisCatalog) Ping(ctx context.Context) error {
	return c.kv.Ping(ctx)
}

func (c *RedisCatalog) Close() error {
	return c.kv.Close()
}
