package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the transaction coordinator.
type Metrics struct {
	// Operation outcomes by kind and result
	OperationTotal *prometheus.CounterVec

	// Submission-to-confirmation latency by kind
	ConfirmLatency *prometheus.HistogramVec

	// Operations currently awaiting confirmation
	InFlight prometheus.Gauge
}

// New creates a Metrics instance with all coordinator metrics registered.
func New() *Metrics {
	return &Metrics{
		OperationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "greenchain_coordinator_operations_total",
			Help: "Coordinated operations by kind and result",
		}, []string{"kind", "result"}), // result: "confirmed", "rejected", "failed"

		ConfirmLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "greenchain_coordinator_confirm_duration_seconds",
			Help:    "Time from submission to confirmed receipt by kind",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),

		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "greenchain_coordinator_inflight_operations",
			Help: "Operations submitted and not yet confirmed",
		}),
	}
}

// RecordOutcome counts a finished operation.
func (m *Metrics) RecordOutcome(kind, result string) {
	if m != nil {
		m.OperationTotal.WithLabelValues(kind, result).Inc()
	}
}

// ObserveConfirmLatency records submission-to-confirmation time.
func (m *Metrics) ObserveConfirmLatency(kind string, d time.Duration) {
	if m != nil {
		m.ConfirmLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// TrackInFlight adjusts the in-flight gauge.
func (m *Metrics) TrackInFlight(delta float64) {
	if m != nil {
		m.InFlight.Add(delta)
	}
}
