// Package metrics exposes tonequeue's Prometheus collectors as an
// explicit collaborator. Recorder is built once at startup and passed
// into Worker, hub.Hub, and credential.Service constructors rather
// than reached via the default registerer from inside domain logic
// (spec §9 design note).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds every collector tonequeue registers.
type Recorder struct {
	registry *prometheus.Registry

	queueDepth      *prometheus.GaugeVec
	leaseChurn      *prometheus.CounterVec
	renderDuration  prometheus.Histogram
	refreshLatency  prometheus.Histogram
	refreshFailures *prometheus.CounterVec
	subscriberCount prometheus.Gauge
}

// NewRecorder builds a Recorder and registers its collectors on a
// fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tonequeue",
			Name:      "queue_depth",
			Help:      "Number of jobs, by status.",
		}, []string{"status"}),
		leaseChurn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tonequeue",
			Name:      "lease_churn_total",
			Help:      "Total lease outcomes by result (acked, nacked, reaped).",
		}, []string{"result"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tonequeue",
			Name:      "render_duration_seconds",
			Help:      "Duration of a render.Engine.Render call.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		refreshLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tonequeue",
			Name:      "credential_refresh_latency_seconds",
			Help:      "Duration of an identity-provider refresh-token exchange.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tonequeue",
			Name:      "credential_refresh_failures_total",
			Help:      "Total refresh-token exchange failures by kind (transient, permanent).",
		}, []string{"kind"}),
		subscriberCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tonequeue",
			Name:      "progress_subscribers",
			Help:      "Number of live Progress Hub subscriptions across all jobs.",
		}),
	}

	registry.MustRegister(
		r.queueDepth,
		r.leaseChurn,
		r.renderDuration,
		r.refreshLatency,
		r.refreshFailures,
		r.subscriberCount,
	)
	return r
}

// Handler exposes the Recorder's registry in Prometheus exposition
// format. Only cmd/tonequeue-server's main ever calls this.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// SetQueueDepth records the current number of jobs in status.
func (r *Recorder) SetQueueDepth(status string, depth int) {
	r.queueDepth.WithLabelValues(status).Set(float64(depth))
}

// IncLeaseChurn records a lease outcome (acked, nacked, or reaped).
func (r *Recorder) IncLeaseChurn(result string) {
	r.leaseChurn.WithLabelValues(result).Inc()
}

// ObserveRenderDuration records how long a render took, in seconds.
func (r *Recorder) ObserveRenderDuration(seconds float64) {
	r.renderDuration.Observe(seconds)
}

// ObserveRefreshLatency records how long a credential refresh RPC
// took, in seconds.
func (r *Recorder) ObserveRefreshLatency(seconds float64) {
	r.refreshLatency.Observe(seconds)
}

// IncRefreshFailure records a failed refresh, classified transient or
// permanent.
func (r *Recorder) IncRefreshFailure(kind string) {
	r.refreshFailures.WithLabelValues(kind).Inc()
}

// SetSubscriberCount records the current number of live Progress Hub
// subscriptions.
func (r *Recorder) SetSubscriberCount(n int) {
	r.subscriberCount.Set(float64(n))
}
