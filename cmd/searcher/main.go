package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Indexer.DataDir)
	if cfg.DocStore.Catalog == config.CatalogBolt {
		slog.Warn("bolt catalog is locked by a running indexer; use postgres or redis to run replicas alongside it")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var catalog docstore.Catalog
	err = resilience.Retry(ctx, "open-catalog", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func(ctx context.Context) error {
		catalog, err = docstore.OpenCatalog(ctx, cfg)
		return err
	})
	if err != nil {
		slog.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}
	defer catalog.Close()

	replica := indexer.NewReplica(cfg.Indexer.DataDir, m)
	if _, err := replica.Reload(); err != nil {
		slog.Error("failed to load snapshot", "error", err)
		os.Exit(1)
	}
	slog.Info("serving snapshot", "version", replica.Current().Version)

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		replica.Start(ctx, cfg.Indexer.ReloadInterval)
	}()

	if cfg.Kafka.Enabled() {
		// Every replica reads every announcement, so there is no group.
		announcements := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SnapshotPublished, "", consumer.HandleSnapshotPublished(replica))
		background.Add(1)
		go func() {
			defer background.Done()
			if err := announcements.Start(ctx); err != nil {
				slog.Error("snapshot consumer error", "error", err)
			}
		}()
	}

	var redisClient *pkgredis.Client
	var queryCache *cache.QueryCache
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, cache.WithMetrics(m))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	checker := health.NewChecker()
	checker.Register("snapshot", func(ctx context.Context) health.ComponentHealth {
		snap := replica.Current()
		if snap.Version == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no snapshot persisted yet"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("version %d, %d documents", snap.Version, snap.Index.DocCount()),
		}
	})
	checker.Register("catalog", health.Ping(false, catalog.Ping))
	if redisClient != nil {
		checker.Register("redis", health.Ping(true, redisClient.Ping))
	}

	var searchOpts []handler.Option
	if cfg.Analytics.Enabled && cfg.Kafka.Enabled() {
		events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer events.Close()
		collector := analytics.NewCollector(events, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		searchOpts = append(searchOpts, handler.WithTracker(collector))
		slog.Info("search analytics enabled", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	exec := executor.New(replica, catalog, query.PolicyFrom(cfg.Search), m)
	mux := http.NewServeMux()
	handler.New(exec, queryCache, cfg.Search, m, searchOpts...).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	limiter := middleware.NewClientLimiter(cfg.Search.RateLimit, cfg.Search.RateBurst, 10*time.Minute)
	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		stop()
	}

	background.Wait()
	slog.Info("search service stopped")
}
