// Package metrics defines the Prometheus metrics exported by the importer
// and the plugin host.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the application reports
type Metrics struct {
	PagesCreated     prometheus.Counter
	PagesUpdated     prometheus.Counter
	PublishErrors    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ExportedServices prometheus.Gauge
	MappingsLoaded   prometheus.Gauge
}

// NewMetrics registers all collectors on reg. A nil reg registers nothing,
// which keeps tests and one-off commands free of global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PagesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "docfx_pages_created_total",
			Help: "Total number of placeholder pages created in Confluence",
		}),
		PagesUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "docfx_pages_updated_total",
			Help: "Total number of Confluence pages updated from DocFX content",
		}),
		PublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docfx_publish_errors_total",
			Help: "Total number of publish failures by stage",
		}, []string{"stage"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docfx_confluence_request_duration_seconds",
			Help:    "Duration of Confluence REST API requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"method", "status"}),
		ExportedServices: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docfx_exported_services",
			Help: "Number of services currently exported by plugins",
		}),
		MappingsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docfx_mappings_loaded",
			Help: "Number of DocFX to Confluence page mappings in the store",
		}),
	}
}

// Discard returns metrics that are not registered anywhere
func Discard() *Metrics {
	return NewMetrics(nil)
}
