// Package metrics exposes Prometheus metrics for search and indexing on a
// private registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spot"

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	registry *prometheus.Registry

	// Search metrics
	SearchesTotal   *prometheus.CounterVec
	SearchDuration  prometheus.Histogram
	SearchDegraded  prometheus.Counter
	SearchCacheHits prometheus.Counter

	// Index metrics
	FilesIndexedTotal *prometheus.CounterVec
	ChunksWritten     prometheus.Counter
	IndexDuration     *prometheus.HistogramVec
	LockContention    prometheus.Counter

	// Embedding metrics
	EmbeddingRequests *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of searches by status",
			},
			[]string{"status"},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Duration of searches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SearchDegraded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_degraded_total",
				Help:      "Searches that fell back to vector order because reranking failed",
			},
		),
		SearchCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_cache_hits_total",
				Help:      "Searches answered from the response cache",
			},
		),
		FilesIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_indexed_total",
				Help:      "Files handled by index and update calls by outcome",
			},
			[]string{"outcome"},
		),
		ChunksWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_written_total",
				Help:      "Chunk records written to the vector index",
			},
		),
		IndexDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "index_duration_seconds",
				Help:      "Duration of index and update calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"mode"},
		),
		LockContention: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workspace_lock_contention_total",
				Help:      "Index or update calls rejected because the workspace was locked",
			},
		),
		EmbeddingRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_requests_total",
				Help:      "Embedding calls by purpose and status",
			},
			[]string{"purpose", "status"},
		),
	}

	m.registry.MustRegister(
		m.SearchesTotal,
		m.SearchDuration,
		m.SearchDegraded,
		m.SearchCacheHits,
		m.FilesIndexedTotal,
		m.ChunksWritten,
		m.IndexDuration,
		m.LockContention,
		m.EmbeddingRequests,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSearch records one search
func (m *Metrics) ObserveSearch(d time.Duration, err error, degraded, cacheHit bool) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SearchesTotal.WithLabelValues(status).Inc()
	m.SearchDuration.Observe(d.Seconds())
	if degraded {
		m.SearchDegraded.Inc()
	}
	if cacheHit {
		m.SearchCacheHits.Inc()
	}
}

// ObserveIndex records one index or update call
func (m *Metrics) ObserveIndex(mode string, d time.Duration, processed, unchanged, removed, failed, chunks int) {
	if m == nil {
		return
	}
	m.FilesIndexedTotal.WithLabelValues("processed").Add(float64(processed))
	m.FilesIndexedTotal.WithLabelValues("unchanged").Add(float64(unchanged))
	m.FilesIndexedTotal.WithLabelValues("removed").Add(float64(removed))
	m.FilesIndexedTotal.WithLabelValues("failed").Add(float64(failed))
	m.ChunksWritten.Add(float64(chunks))
	m.IndexDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveLockContention records a rejected index or update call
func (m *Metrics) ObserveLockContention() {
	if m == nil {
		return
	}
	m.LockContention.Inc()
}

// ObserveEmbedding records one embedding call
func (m *Metrics) ObserveEmbedding(purpose string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EmbeddingRequests.WithLabelValues(purpose, status).Inc()
}
