// Package metrics exports pipeline counters and latencies for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carescope"

// Metrics owns its own registry so several instances can coexist in tests.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	queries        *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	rebuilds       *prometheus.CounterVec
	indexSize      prometheus.Gauge
	embedCacheHits *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries processed, by intent and final state.",
		}, []string{"intent", "state"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage", "status"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Index rebuild attempts by outcome.",
		}, []string{"status"}),
		indexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_records",
			Help:      "Records in the live index version.",
		}),
		embedCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.queries, m.stageDuration, m.rebuilds, m.indexSize, m.embedCacheHits)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStage(stage string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status(success)).Observe(d.Seconds())
}

func (m *Metrics) ObserveQuery(intent, state string) {
	if m == nil {
		return
	}
	if intent == "" {
		intent = "unknown"
	}
	m.queries.WithLabelValues(intent, state).Inc()
}

func (m *Metrics) ObserveRebuild(success bool, records int) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(status(success)).Inc()
	if success {
		m.indexSize.Set(float64(records))
	}
}

func (m *Metrics) ObserveCache(hits, misses int) {
	if m == nil {
		return
	}
	m.embedCacheHits.WithLabelValues("hit").Add(float64(hits))
	m.embedCacheHits.WithLabelValues("miss").Add(float64(misses))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
