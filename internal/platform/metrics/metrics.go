// Package metrics registers the HTTP-level Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the request-level Prometheus metrics for the HTTP layer.
// Domain packages register their own metrics separately.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
}

// New creates and registers all HTTP metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "greenchain_http_request_duration_ms",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"method", "path"}),
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "greenchain_http_requests_total",
			Help: "Total HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
	}
}

// ObserveRequest records one completed request. Nil-safe so handlers can be
// constructed without metrics in tests.
func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, path).Observe(float64(d.Milliseconds()))
	m.RequestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
