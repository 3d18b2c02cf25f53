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
	indexhandler "github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer/handler"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/executor"
	searchhandler "github.com/Adithya-Monish-Kumar-K/booksearch/internal/searcher/handler"
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
	slog.Info("starting indexer service",
		"port", cfg.Server.Port,
		"datalake", cfg.DocStore.DatalakeDir,
		"catalog", cfg.DocStore.Catalog,
	)

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

	store := docstore.NewDatalake(cfg.DocStore.DatalakeDir)
	ix := indexer.New(store, cfg.Indexer, indexer.WithMetrics(m), indexer.WithCatalog(catalog))

	persisterOpts := []indexer.PersisterOption{indexer.WithPersisterMetrics(m)}
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SnapshotPublished)
		defer producer.Close()
		persisterOpts = append(persisterOpts, indexer.WithNotifier(producer))
	}
	persister := indexer.NewPersister(ix, cfg.Indexer, persisterOpts...)
	if err := persister.Restore(ctx); err != nil {
		slog.Error("failed to restore snapshot", "error", err)
		os.Exit(1)
	}

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		persister.Start(ctx, cfg.Server.ShutdownTimeout)
	}()

	if cfg.Kafka.Enabled() {
		requeue := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexRequests)
		defer requeue.Close()
		requests := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexRequests, cfg.Kafka.ConsumerGroup, consumer.HandleIndexRequest(ix, requeue))
		background.Add(1)
		go func() {
			defer background.Done()
			if err := requests.Start(ctx); err != nil {
				slog.Error("index request consumer error", "error", err)
			}
		}()
		slog.Info("consuming index requests", "topic", cfg.Kafka.Topics.IndexRequests, "group", cfg.Kafka.ConsumerGroup)
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
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		st := ix.Status()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("version %d, %d documents, %s", st.Version, st.Documents, st.State),
		}
	})
	checker.Register("catalog", health.Ping(false, catalog.Ping))
	if redisClient != nil {
		checker.Register("redis", health.Ping(true, redisClient.Ping))
	}

	var searchOpts []searchhandler.Option
	if cfg.Analytics.Enabled && cfg.Kafka.Enabled() {
		events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer events.Close()
		collector := analytics.NewCollector(events, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		searchOpts = append(searchOpts, searchhandler.WithTracker(collector))
		slog.Info("search analytics enabled", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	exec := executor.New(ix, catalog, query.PolicyFrom(cfg.Search), m)
	search := http.NewServeMux()
	searchhandler.New(exec, queryCache, cfg.Search, m, searchOpts...).Register(search)
	limiter := middleware.NewClientLimiter(cfg.Search.RateLimit, cfg.Search.RateBurst, 10*time.Minute)
	searchChain := middleware.RateLimit(limiter)(middleware.Timeout(cfg.Server.WriteTimeout)(search))

	mux := http.NewServeMux()
	indexhandler.New(ix).Register(mux)
	mux.Handle("/api/v1/search", searchChain)
	mux.Handle("/api/v1/cache/", searchChain)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	// No write timeout: a rebuild answers only once it has finished.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     chain,
		ReadTimeout: cfg.Server.ReadTimeout,
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

	slog.Info("indexer service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		stop()
	}

	background.Wait()
	slog.Info("indexer service stopped")
}
