package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/redis"
)

// OpenCatalog opens the backend selected by docstore.catalog.
func OpenCatalog(ctx context.Context, cfg *config.Config) (Catalog, error) {
	logger := slog.Default().With("component", "catalog", "backend", cfg.DocStore.Catalog)
	switch cfg.DocStore.Catalog {
	case config.CatalogBolt:
		path := cfg.DocStore.CatalogPath
		if path == "" {
			path = filepath.Join(cfg.Indexer.DataDir, "catalog.db")
		}
		cat, err := OpenBoltCatalog(path)
		if err != nil {
			return nil, err
		}
		logger.Info("catalog opened", "path", path)
		return cat, nil
	case config.CatalogPostgres:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		cat, err := NewPostgresCatalog(ctx, client)
		if err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("catalog opened", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return cat, nil
	case config.CatalogRedis:
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("catalog opened", "addr", cfg.Redis.Addr)
		return NewRedisCatalog(client), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.DocStore.Catalog)
	}
}
