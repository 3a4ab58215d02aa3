package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for review collection.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	ReviewsTotal     *prometheus.CounterVec
	DroppedTotal     *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	CacheEventsTotal *prometheus.CounterVec
	CollectionsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_feed_requests_total",
			Help: "Total feed HTTP requests by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviews_feed_request_duration_seconds",
			Help:    "Feed HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	reviews := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_collected_total",
			Help: "Reviews admitted into a result, by region.",
		},
		[]string{"region"},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_dropped_total",
			Help: "Feed entries that did not become reviews, by reason.",
		},
		[]string{"reason"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_feed_retries_total",
			Help: "Total number of feed request retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_feed_errors_total",
			Help: "Total number of feed request errors by type.",
		},
		[]string{"error_type"},
	)
	cacheEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_cache_events_total",
			Help: "Cache hits, misses, sets and errors.",
		},
		[]string{"cache", "event"},
	)
	collections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_collections_total",
			Help: "Collection calls by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, reviews, dropped, retries, errorsTotal, cacheEvents, collections)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		ReviewsTotal:     reviews,
		DroppedTotal:     dropped,
		RetriesTotal:     retries,
		ErrorsTotal:      errorsTotal,
		CacheEventsTotal: cacheEvents,
		CollectionsTotal: collections,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncReviews increments the admitted reviews counter for a region.
func (m *Metrics) IncReviews(region string) {
	if m == nil {
		return
	}
	m.ReviewsTotal.WithLabelValues(region).Inc()
}

// IncDropped increments the dropped entries counter for a reason.
func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.DroppedTotal.WithLabelValues(reason).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCache records a cache event such as hit or miss.
func (m *Metrics) IncCache(cache, event string) {
	if m == nil {
		return
	}
	m.CacheEventsTotal.WithLabelValues(cache, event).Inc()
}

// IncCollection records the outcome of a Collect call.
func (m *Metrics) IncCollection(outcome string) {
	if m == nil {
		return
	}
	m.CollectionsTotal.WithLabelValues(outcome).Inc()
}

// RegisterLanguageMemo exposes memo hit and miss counts read from stats.
func (m *Metrics) RegisterLanguageMemo(stats func() (hits, misses int64)) {
	if m == nil || stats == nil {
		return
	}
	hits := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "reviews_cache_lookups_total",
			Help:        "Language memo lookups by result.",
			ConstLabels: prometheus.Labels{"cache": "language", "result": "hit"},
		},
		func() float64 {
			h, _ := stats()
			return float64(h)
		},
	)
	misses := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "reviews_cache_lookups_total",
			Help:        "Language memo lookups by result.",
			ConstLabels: prometheus.Labels{"cache": "language", "result": "miss"},
		},
		func() float64 {
			_, ms := stats()
			return float64(ms)
		},
	)
	m.Registry.MustRegister(hits, misses)
}
