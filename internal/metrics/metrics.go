// Package metrics exposes the pipeline's prometheus counters: item
// throughput and alert create/update/error totals per ingest run, served
// over an optional --metrics-addr HTTP endpoint (§6 CLI surface).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters an ingest run increments.
type Metrics struct {
	RawItemsIngested prometheus.Counter
	AlertsCreated    prometheus.Counter
	AlertsUpdated    prometheus.Counter
	IngestErrors     prometheus.Counter
}

// New registers a fresh counter set against its own registry, so repeated
// test construction never collides with prometheus's default global
// registry.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		RawItemsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_raw_items_ingested_total",
			Help: "Total number of raw items processed by the ingest pipeline.",
		}),
		AlertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_created_total",
			Help: "Total number of alerts created by the correlation engine.",
		}),
		AlertsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_updated_total",
			Help: "Total number of alerts updated by the correlation engine.",
		}),
		IngestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_ingest_errors_total",
			Help: "Total number of raw items whose processing failed at any pipeline stage.",
		}),
	}
	reg.MustRegister(m.RawItemsIngested, m.AlertsCreated, m.AlertsUpdated, m.IngestErrors)
	return m, reg
}

// Handler returns an http.Handler serving reg in the Prometheus exposition
// format, for binding to --metrics-addr.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
