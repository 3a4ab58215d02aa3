// Package api exposes review collection over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server routes HTTP requests to a Collector.
type Server struct {
	mux            *chi.Mux
	collector      *scraper.Collector
	defaultRegions []string
	metrics        *httpMetrics
}

// Option customises a Server.
type Option func(*Server)

// WithDefaultRegions sets the regions used when a request names none.
func WithDefaultRegions(regions []string) Option {
	return func(s *Server) {
		s.defaultRegions = append([]string(nil), regions...)
	}
}

// New builds the router. timeout bounds each collection; zero means no limit
// beyond the client connection.
func New(collector *scraper.Collector, timeout time.Duration, opts ...Option) *Server {
	s := &Server{
		mux:       chi.NewRouter(),
		collector: collector,
	}
	for _, opt := range opts {
		opt(s)
	}

	var registry *prometheus.Registry
	if collector.Metrics != nil {
		registry = collector.Metrics.Registry
	}
	s.metrics = newHTTPMetrics(registry)

	s.mux.Use(chimw.RealIP)
	s.mux.Use(chimw.RequestID)
	s.mux.Use(chimw.Recoverer)
	s.mux.Use(s.metrics.middleware)
	s.mux.Use(Logger)
	if timeout > 0 {
		s.mux.Use(Deadline(timeout))
	}

	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Get("/v1/apps/{appID}/reviews", s.listReviews)
	if registry != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }
