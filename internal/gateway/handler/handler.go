// Package handler proxies gateway routes to the backend services.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/resilience"
)

// Config holds the URLs of the backend services. An empty URL leaves that
// backend unconfigured.
type Config struct {
	IngestionURL string
	IndexerURL   string
	SearcherURL  string
	AnalyticsURL string
}

// Backend is one proxied service. Transport failures count against its
// circuit breaker; error responses from a reachable service do not.
type Backend struct {
	Name    string
	URL     *url.URL
	proxy   *httputil.ReverseProxy
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

type proxyErrKey struct{}

// NewBackend returns nil for an empty target.
func NewBackend(name, target string, m *metrics.Metrics) (*Backend, error) {
	if target == "" {
		return nil, nil
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s backend url %q is not absolute", name, target)
	}
	b := &Backend{
		Name:   name,
		URL:    u,
		proxy:  httputil.NewSingleHostReverseProxy(u),
		logger: slog.Default().With("component", "gateway-proxy", "backend", name),
	}
	b.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if holder, ok := r.Context().Value(proxyErrKey{}).(*error); ok {
			*holder = err
		}
	}
	b.breaker = resilience.NewCircuitBreaker("gateway-"+name, resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return b, nil
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var proxyErr error
	out := r.WithContext(context.WithValue(r.Context(), proxyErrKey{}, &proxyErr))
	if id := logger.RequestID(r.Context()); id != "" {
		out.Header = r.Header.Clone()
		out.Header.Set(middleware.RequestIDHeader, id)
	}
	err := b.breaker.Execute(func() error {
		b.proxy.ServeHTTP(w, out)
		return proxyErr
	})
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, b.Name+" is unavailable", "upstream_unavailable")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		logger.FromContext(r.Context()).Error("proxy request failed", "backend", b.Name, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, b.Name+" did not answer", "upstream_unavailable")
	}
}

// Probe checks the backend's liveness endpoint.
func (b *Backend) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.URL.JoinPath("/health/live").String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s liveness answered %s", b.Name, resp.Status)
	}
	return nil
}

type Handler struct {
	Ingestion *Backend
	Indexer   *Backend
	Searcher  *Backend
	Analytics *Backend
}

func New(cfg Config, m *metrics.Metrics) (*Handler, error) {
	var h Handler
	var err error
	for _, b := range []struct {
		dst    **Backend
		name   string
		target string
	}{
		{&h.Ingestion, "ingestion", cfg.IngestionURL},
		{&h.Indexer, "indexer", cfg.IndexerURL},
		{&h.Searcher, "searcher", cfg.SearcherURL},
		{&h.Analytics, "analytics", cfg.AnalyticsURL},
	} {
		if *b.dst, err = NewBackend(b.name, b.target, m); err != nil {
			return nil, err
		}
	}
	return &h, nil
}

// Backends lists the configured backends.
func (h *Handler) Backends() []*Backend {
	var out []*Backend
	for _, b := range []*Backend{h.Ingestion, h.Indexer, h.Searcher, h.Analytics} {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Route returns the backend as a handler, or a 503 handler when it is not
// configured.
func Route(b *Backend, name string) http.Handler {
	if b == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusServiceUnavailable, name+" is not configured", "upstream_unavailable")
		})
	}
	return b
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
