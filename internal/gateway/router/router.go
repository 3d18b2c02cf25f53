// Package router wires the gateway routes and applies the middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/auth/apikey"
	gwhandler "github.com/Adithya-Monish-Kumar-K/booksearch/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/booksearch/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/middleware"
)

// New builds the gateway handler.
//
// Route table:
//
//	/api/v1/ingest/...      ingestion service
//	/api/v1/index/...       indexer service
//	/api/v1/search          search service
//	/api/v1/cache/...       search service
//	/api/v1/analytics[/...] analytics service
//	/health/live, /ready    gateway health
//
// Middleware chain (outermost first):
//
//	RequestID, Metrics, CORS, RateLimit, Auth, mux
func New(h *gwhandler.Handler, ring *apikey.Keyring, checker *health.Checker, cfg config.Config, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.Handle("/api/v1/ingest/", gwhandler.Route(h.Ingestion, "ingestion"))
	mux.Handle("/api/v1/index/", gwhandler.Route(h.Indexer, "indexer"))
	search := gwhandler.Route(h.Searcher, "searcher")
	mux.Handle("/api/v1/search", search)
	mux.Handle("/api/v1/cache/", search)
	analytics := gwhandler.Route(h.Analytics, "analytics")
	mux.Handle("/api/v1/analytics", analytics)
	mux.Handle("/api/v1/analytics/", analytics)

	var limiter *pkgmw.ClientLimiter
	if cfg.Search.RateLimit > 0 {
		limiter = pkgmw.NewClientLimiter(cfg.Search.RateLimit, cfg.Search.RateBurst, 10*time.Minute)
	}

	var chain http.Handler = mux
	chain = gwmw.Auth(ring)(chain)
	chain = pkgmw.RateLimit(limiter)(chain)
	chain = gwmw.CORS(gwmw.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = pkgmw.Metrics(m)(chain)
	chain = pkgmw.RequestID(chain)
	return chain
}
