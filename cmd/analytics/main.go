// Command analytics aggregates search events.
//
// It consumes the search event topic written by the search services and the
// snapshot announcements written by the indexer, keeps running query
// statistics in memory and serves them at GET /api/v1/analytics. With
// postgres configured the statistics are also saved periodically and listed
// at GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/postgres"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port)
	if !cfg.Kafka.Enabled() {
		slog.Error("analytics needs kafka brokers")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	agg := analytics.NewAggregator(cfg.Analytics.TopN)
	var background sync.WaitGroup
	consume := func(topic string, handler kafka.MessageHandler) {
		c := kafka.NewConsumer(cfg.Kafka, topic, cfg.Kafka.ConsumerGroup+"-analytics-"+topic, handler)
		background.Add(1)
		go func() {
			defer background.Done()
			if err := c.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "topic", topic, "error", err)
			}
		}()
		slog.Info("consuming", "topic", topic)
	}
	consume(cfg.Kafka.Topics.SearchEvents, analytics.HandleSearchEvent(agg))
	consume(cfg.Kafka.Topics.SnapshotPublished, analytics.HandleSnapshotPublished(agg))

	checker := health.NewChecker()
	checker.Register("aggregator", func(ctx context.Context) health.ComponentHealth {
		stats := agg.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d searches, snapshot version %d", stats.TotalSearches, stats.SnapshotVersion),
		}
	})

	var history analytics.History
	if cfg.Postgres.Host != "" {
		var db *postgres.Client
		err := resilience.Retry(ctx, "connect postgres", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func(ctx context.Context) error {
			db, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		var store *aggregator.Store
		if err == nil {
			store, err = aggregator.NewStore(ctx, db)
		}
		if err != nil {
			slog.Warn("analytics history disabled", "error", err)
		} else {
			defer db.Close()
			history = store
			checker.Register("postgres", health.Ping(true, db.Ping))
			background.Add(1)
			go func() {
				defer background.Done()
				store.Run(ctx, agg, cfg.Analytics.SnapshotInterval)
			}()
		}
	}

	mux := http.NewServeMux()
	analytics.NewHandler(agg, history).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		stop()
	}

	background.Wait()
	slog.Info("analytics service stopped")
}
