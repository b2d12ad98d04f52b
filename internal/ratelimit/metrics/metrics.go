package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for request rate limiting.
type Metrics struct {
	Checks   *prometheus.CounterVec
	FailOpen prometheus.Counter
}

// New creates a new Metrics instance with all rate limit metrics registered
// on the default registry.
func New() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_ratelimit_checks_total",
			Help: "Total rate limit checks by endpoint class and outcome",
		}, []string{"class", "outcome"}),
		FailOpen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_ratelimit_fail_open_total",
			Help: "Total requests admitted because the rate limit store errored",
		}),
	}
}

// IncrementCheck records one rate limit decision for the class.
func (m *Metrics) IncrementCheck(class, outcome string) {
	m.Checks.WithLabelValues(class, outcome).Inc()
}

// IncrementFailOpen records one request admitted despite a store error.
func (m *Metrics) IncrementFailOpen() {
	m.FailOpen.Inc()
}
