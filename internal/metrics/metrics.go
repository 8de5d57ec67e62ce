package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imgbatch"

// Metrics exports backend counters to Prometheus.
type Metrics struct {
	gatherer prometheus.Gatherer

	quotaDecisions *prometheus.CounterVec
	uploadedBytes  prometheus.Counter
	uploads        *prometheus.CounterVec
	usageEvents    *prometheus.CounterVec
}

// New registers the backend metrics on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota admission decisions by outcome.",
		}, []string{"outcome"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative artifact bytes persisted to object storage.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Artifact uploads by outcome.",
		}, []string{"outcome"}),
		usageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_total",
			Help:      "Usage reports by pipeline stage.",
		}, []string{"stage"}),
	}

	reg.MustRegister(m.quotaDecisions, m.uploadedBytes, m.uploads, m.usageEvents)

	return m
}

// QuotaDecision counts one admission decision.
func (m *Metrics) QuotaDecision(allowed bool) {
	if allowed {
		m.quotaDecisions.WithLabelValues("allowed").Inc()
		return
	}
	m.quotaDecisions.WithLabelValues("denied").Inc()
}

// Upload counts one upload attempt and, on success, its size.
func (m *Metrics) Upload(outcome string, size int64) {
	m.uploads.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.uploadedBytes.Add(float64(size))
	}
}

// UsageEvent counts a usage report reaching stage ("published" or "stored").
func (m *Metrics) UsageEvent(stage string) {
	m.usageEvents.WithLabelValues(stage).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
