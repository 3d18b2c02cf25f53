// Command gateway is the single entry point for external clients.
//
// It proxies to the ingestion, indexer, search and analytics services,
// requires an API key on state-changing routes and applies per-client rate
// limits and CORS.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/auth/apikey"
	gwhandler "github.com/Adithya-Monish-Kumar-K/booksearch/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
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
	slog.Info("starting gateway service",
		"port", cfg.Server.Port,
		"ingestion_url", cfg.Gateway.IngestionURL,
		"indexer_url", cfg.Gateway.IndexerURL,
		"searcher_url", cfg.Gateway.SearcherURL,
		"analytics_url", cfg.Gateway.AnalyticsURL,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	ring, err := apikey.NewKeyring(cfg.Server.APIKeys)
	if err != nil {
		slog.Error("invalid api keys", "error", err)
		os.Exit(1)
	}
	if ring.Empty() {
		slog.Warn("no api keys configured, state-changing routes are open")
	}

	h, err := gwhandler.New(gwhandler.Config{
		IngestionURL: cfg.Gateway.IngestionURL,
		IndexerURL:   cfg.Gateway.IndexerURL,
		SearcherURL:  cfg.Gateway.SearcherURL,
		AnalyticsURL: cfg.Gateway.AnalyticsURL,
	}, m)
	if err != nil {
		slog.Error("invalid gateway config", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	for _, b := range h.Backends() {
		// Only search is needed for the gateway to be useful.
		checker.Register(b.Name, health.Ping(b != h.Searcher, b.Probe))
	}

	// No write timeout: rebuilds proxied to the indexer answer when done.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router.New(h, ring, checker, *cfg, m),
		ReadTimeout: cfg.Server.ReadTimeout,
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

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway service stopped")
}
