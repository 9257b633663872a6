package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the render service.
type Metrics struct {
	registry       *prometheus.Registry
	rendersTotal   *prometheus.CounterVec
	renderDuration prometheus.Histogram
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	tagsLoaded     prometheus.Gauge
}

// NewMetrics registers the service collectors on a fresh registry. Each
// server cycle gets its own so a restart does not register twice.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		rendersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "markus",
			Name:      "renders_total",
			Help:      "Total number of render requests by outcome.",
		}, []string{"status"}),

		renderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "markus",
			Name:      "render_duration_seconds",
			Help:      "Time spent parsing and rendering a document.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),

		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "markus",
			Name:      "cache_hits_total",
			Help:      "Renders served from the render cache.",
		}),

		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "markus",
			Name:      "cache_misses_total",
			Help:      "Cache lookups that had to render.",
		}),

		tagsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "markus",
			Name:      "tags_loaded",
			Help:      "Number of tag names loaded from tag files.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
