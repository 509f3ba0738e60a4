package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the age verification mediator.
type Metrics struct {
	SessionsStarted        prometheus.Counter
	StartShortCircuited    prometheus.Counter
	VerificationsCompleted prometheus.Counter
	ProofsRejected         prometheus.Counter
	ResultsPending         prometheus.Counter
	UpstreamErrors         *prometheus.CounterVec
	SessionsReaped         prometheus.Counter

	StartLatency  prometheus.Histogram
	ResultLatency prometheus.Histogram
}

// New registers and returns the mediator metrics collectors.
func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_sessions_started_total",
			Help: "Total number of upstream disclosure sessions started",
		}),
		StartShortCircuited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_start_short_circuited_total",
			Help: "Total number of start calls answered from an existing verification",
		}),
		VerificationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_verifications_completed_total",
			Help: "Total number of verification outcomes recorded",
		}),
		ProofsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_proofs_rejected_total",
			Help: "Total number of disclosures that finished without a valid proof",
		}),
		ResultsPending: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_results_pending_total",
			Help: "Total number of result polls answered before the upstream session was done",
		}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agegate_upstream_errors_total",
			Help: "Total number of failed proof server calls, labeled by operation",
		}, []string{"operation"}),
		SessionsReaped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_sessions_reaped_total",
			Help: "Total number of sessions removed past the retention horizon",
		}),

		StartLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agegate_start_latency_seconds",
			Help:    "Latency of start operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ResultLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agegate_result_latency_seconds",
			Help:    "Latency of result operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementSessionsStarted() {
	m.SessionsStarted.Inc()
}

func (m *Metrics) IncrementStartShortCircuited() {
	m.StartShortCircuited.Inc()
}

func (m *Metrics) IncrementVerificationsCompleted() {
	m.VerificationsCompleted.Inc()
}

func (m *Metrics) IncrementProofsRejected() {
	m.ProofsRejected.Inc()
}

func (m *Metrics) IncrementResultsPending() {
	m.ResultsPending.Inc()
}

func (m *Metrics) IncrementUpstreamErrors(operation string) {
	m.UpstreamErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) AddSessionsReaped(count int) {
	m.SessionsReaped.Add(float64(count))
}

// ObserveStartLatency records the latency of a start operation.
func (m *Metrics) ObserveStartLatency(durationSeconds float64) {
	m.StartLatency.Observe(durationSeconds)
}

// ObserveResultLatency records the latency of a result operation.
func (m *Metrics) ObserveResultLatency(durationSeconds float64) {
	m.ResultLatency.Observe(durationSeconds)
}
