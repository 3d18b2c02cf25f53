// Command ingestion accepts books into the datalake.
//
// A book is either uploaded as plain text to POST /api/v1/ingest/{id} or,
// with an empty body, fetched from the configured source. Stored books are
// announced on the index request topic so the indexer picks them up.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/middleware"
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
	slog.Info("starting ingestion service",
		"port", cfg.Server.Port,
		"datalake", cfg.DocStore.DatalakeDir,
		"source", cfg.Ingestion.SourceURL,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	lake := docstore.NewDatalake(cfg.DocStore.DatalakeDir)

	var fetcher publisher.Fetcher
	if cfg.Ingestion.SourceURL != "" {
		fetcher = publisher.NewHTTPFetcher(cfg.Ingestion)
	}

	var notifier publisher.Notifier
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexRequests)
		defer producer.Close()
		notifier = producer
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.IndexRequests)
	} else {
		slog.Warn("kafka disabled, stored books are indexed on the next rebuild")
	}

	pub := publisher.New(lake, fetcher, notifier, cfg.Ingestion.MaxBookBytes)
	h := handler.New(pub, cfg.Ingestion.MaxBookBytes+64<<10)

	checker := health.NewChecker()
	checker.Register("datalake", health.Ping(false, func(ctx context.Context) error {
		_, err := os.Stat(cfg.DocStore.DatalakeDir)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}))

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Ingestion.FetchTimeout * 4)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     chain,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: 2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
