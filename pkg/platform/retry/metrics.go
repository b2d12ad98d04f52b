package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for retry behavior, labeled by operation.
type Metrics struct {
	Retries   *prometheus.CounterVec
	Exhausted *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with retry metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Retries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_retry_attempts_total",
			Help: "Total number of retry attempts after a retryable failure",
		}, []string{"operation"}),
		Exhausted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_retry_exhausted_total",
			Help: "Total number of operations that failed after exhausting retries",
		}, []string{"operation"}),
	}
}

// IncRetry increments the retry counter for an operation.
func (m *Metrics) IncRetry(operation string) {
	m.Retries.WithLabelValues(operation).Inc()
}

// IncExhausted increments the exhausted counter for an operation.
func (m *Metrics) IncExhausted(operation string) {
	m.Exhausted.WithLabelValues(operation).Inc()
}
