// Package metrics holds the Prometheus collectors for the recommendation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RAG query outcomes
const (
	OutcomeAnswered = "answered"
	OutcomeCached   = "cached"
	OutcomeFallback = "fallback"
)

// Collector owns a private registry so several containers can coexist in one process
type Collector struct {
	registry *prometheus.Registry

	ragQueries       *prometheus.CounterVec
	backendDuration  *prometheus.HistogramVec
	backendErrors    *prometheus.CounterVec
	recommendations  *prometheus.CounterVec
	allergyDropped   prometheus.Counter
	chunksIngested   prometheus.Counter
	documentsSkipped prometheus.Counter
	httpRequests     *prometheus.CounterVec
}

// New creates a collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ragQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealsense_rag_queries_total",
				Help: "RAG queries by outcome",
			},
			[]string{"outcome"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mealsense_backend_duration_seconds",
				Help:    "Embedding and completion backend latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealsense_backend_errors_total",
				Help: "Embedding and completion backend failures",
			},
			[]string{"backend"},
		),
		recommendations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealsense_recommendations_total",
				Help: "Recommendations returned by source",
			},
			[]string{"kind", "source"},
		),
		allergyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mealsense_allergy_filtered_total",
			Help: "Items removed by the allergy filter",
		}),
		chunksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mealsense_chunks_ingested_total",
			Help: "Document chunks stored",
		}),
		documentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mealsense_documents_skipped_total",
			Help: "Documents skipped during ingestion",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealsense_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	c.registry.MustRegister(
		c.ragQueries,
		c.backendDuration,
		c.backendErrors,
		c.recommendations,
		c.allergyDropped,
		c.chunksIngested,
		c.documentsSkipped,
		c.httpRequests,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RAGQuery(outcome string) {
	c.ragQueries.WithLabelValues(outcome).Inc()
}

// ObserveBackend records one backend call
func (c *Collector) ObserveBackend(backend string, start time.Time, err error) {
	c.backendDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	if err != nil {
		c.backendErrors.WithLabelValues(backend).Inc()
	}
}

func (c *Collector) Recommended(kind, source string, n int) {
	if n > 0 {
		c.recommendations.WithLabelValues(kind, source).Add(float64(n))
	}
}

func (c *Collector) AllergyFiltered(n int) {
	if n > 0 {
		c.allergyDropped.Add(float64(n))
	}
}

func (c *Collector) ChunksIngested(n int) {
	if n > 0 {
		c.chunksIngested.Add(float64(n))
	}
}

func (c *Collector) DocumentSkipped() {
	c.documentsSkipped.Inc()
}

func (c *Collector) HTTPRequest(method, route, status string) {
	c.httpRequests.WithLabelValues(method, route, status).Inc()
}
