// Package metrics holds the Prometheus collectors for the transfer service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "stock_transfer"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	referenceLoads *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	submitDuration prometheus.Histogram
	activeSessions prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		referenceLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_loads_total",
			Help:      "Reference data fetches by resource and outcome.",
		}, []string{"resource", "outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Transfer submissions by outcome.",
		}, []string{"outcome"}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Latency of transfer POSTs to the clinic backend.",
			Buckets:   prometheus.DefBuckets,
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open transfer-composition sessions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.referenceLoads, m.submissions, m.submitDuration, m.activeSessions)
	}
	return m
}

func (m *Metrics) ReferenceLoad(resource string, err error) {
	if m == nil {
		return
	}
	m.referenceLoads.WithLabelValues(resource, outcome(err)).Inc()
}

// Submission records the outcome of one submit call. kind is "ok",
// "validation", "in_flight", "duplicate" or "backend".
func (m *Metrics) Submission(kind string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSubmit(seconds float64) {
	if m == nil {
		return
	}
	m.submitDuration.Observe(seconds)
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
