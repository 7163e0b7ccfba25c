// Package metrics holds the Prometheus collectors for sync, events and the
// HTTP surface. All methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync outcomes.
const (
	SyncComplete    = "complete"
	SyncFetchFailed = "fetch_failed"
	SyncFailed      = "failed"
)

// Metrics provides observability for countrysync.
type Metrics struct {
	SyncRuns          *prometheus.CounterVec
	SyncRecords       prometheus.Counter
	SyncDuration      prometheus.Histogram
	ManualAdds        prometheus.Counter
	EventsPublished   *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	NotifierCircuit   prometheus.Gauge
	HTTPRequests      *prometheus.CounterVec
	HTTPRequestLength *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "countrysync_sync_runs_total",
			Help: "Reconciliation runs by outcome",
		}, []string{"outcome"}), // outcome: "complete", "fetch_failed", "failed"

		SyncRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "countrysync_sync_records_total",
			Help: "Valid external records processed across all runs",
		}),

		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "countrysync_sync_duration_seconds",
			Help:    "Wall time of a reconciliation run including the fetch",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		ManualAdds: f.NewCounter(prometheus.CounterOpts{
			Name: "countrysync_manual_adds_total",
			Help: "Countries added through the manual path",
		}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "countrysync_events_published_total",
			Help: "Change events published by result",
		}, []string{"result"}), // result: "ok", "error"

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "countrysync_notifications_total",
			Help: "Notification deliveries by result",
		}, []string{"result"}), // result: "sent", "failed", "skipped"

		NotifierCircuit: f.NewGauge(prometheus.GaugeOpts{
			Name: "countrysync_notifier_circuit_state",
			Help: "SMTP circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "countrysync_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		}, []string{"route", "code"}),

		HTTPRequestLength: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "countrysync_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveSync records one finished run.
func (m *Metrics) ObserveSync(outcome string, processed int64, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(outcome).Inc()
	m.SyncRecords.Add(float64(processed))
	m.SyncDuration.Observe(d.Seconds())
}

// IncManualAdd counts one committed manual add.
func (m *Metrics) IncManualAdd() {
	if m != nil {
		m.ManualAdds.Inc()
	}
}

// IncPublished counts one publish attempt.
func (m *Metrics) IncPublished(ok bool) {
	if m != nil {
		m.EventsPublished.WithLabelValues(resultLabel(ok, "ok", "error")).Inc()
	}
}

// IncNotification counts one delivery outcome: "sent", "failed" or "skipped".
func (m *Metrics) IncNotification(result string) {
	if m != nil {
		m.Notifications.WithLabelValues(result).Inc()
	}
}

// SetNotifierCircuit records the breaker state as its numeric value.
func (m *Metrics) SetNotifierCircuit(state int) {
	if m != nil {
		m.NotifierCircuit.Set(float64(state))
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
	m.HTTPRequestLength.WithLabelValues(route).Observe(d.Seconds())
}

func resultLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
