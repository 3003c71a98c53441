package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the certificate lifecycle module.
type Metrics struct {
	// Confirmed lifecycle transitions by operation
	TransitionTotal *prometheus.CounterVec

	// Rejected transition attempts by operation and error code
	RejectionTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all lifecycle metrics registered.
func New() *Metrics {
	return &Metrics{
		TransitionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "greenchain_lifecycle_transitions_total",
			Help: "Confirmed certificate lifecycle transitions by operation",
		}, []string{"operation"}), // operation: "mint", "approve", "retire", "bridge"

		RejectionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "greenchain_lifecycle_rejections_total",
			Help: "Rejected lifecycle transition attempts by operation and error code",
		}, []string{"operation", "code"}),
	}
}

// RecordTransition counts a confirmed transition.
func (m *Metrics) RecordTransition(operation string) {
	if m != nil {
		m.TransitionTotal.WithLabelValues(operation).Inc()
	}
}

// RecordRejection counts a validation or execution failure.
func (m *Metrics) RecordRejection(operation, code string) {
	if m != nil {
		m.RejectionTotal.WithLabelValues(operation, code).Inc()
	}
}
