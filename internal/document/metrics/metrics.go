package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document module: lifecycle
// transitions, upload outcomes, and reconciliation poll behavior.
type Metrics struct {
	Uploads           *prometheus.CounterVec
	Attestations      *prometheus.CounterVec
	Mints             prometheus.Counter
	Rejections        prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	PollRuns          prometheus.Counter
	PollSkips         prometheus.Counter
	PollFailures      prometheus.Counter
	EventsEmitted     *prometheus.CounterVec
}

// New creates a new Metrics instance with all document module metrics
// registered on the default registry.
func New() *Metrics {
	return &Metrics{
		Uploads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_document_uploads_total",
			Help: "Total document uploads by registration outcome (remote or local)",
		}, []string{"registration"}),
		Attestations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_document_attestations_total",
			Help: "Total attestations by ledger confirmation outcome",
		}, []string{"ledger"}),
		Mints: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_document_mints_total",
			Help: "Total credit mints recorded",
		}),
		Rejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_document_rejections_total",
			Help: "Total document rejections",
		}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_document_status_transitions_total",
			Help: "Document status transitions by from and to status",
		}, []string{"from", "to"}),
		PollRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_document_poll_runs_total",
			Help: "Total reconciliation poll passes completed",
		}),
		PollSkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_document_poll_skips_total",
			Help: "Poll ticks skipped because the previous pass was still running",
		}),
		PollFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_document_poll_failures_total",
			Help: "Reconciliation poll passes that ended in an error",
		}),
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_document_events_total",
			Help: "Document lifecycle events emitted by type",
		}, []string{"type"}),
	}
}

// IncrementUpload records an upload with its registration outcome.
func (m *Metrics) IncrementUpload(registration string) {
	m.Uploads.WithLabelValues(registration).Inc()
}

// IncrementAttestation records an attestation with its ledger outcome.
func (m *Metrics) IncrementAttestation(ledger string) {
	m.Attestations.WithLabelValues(ledger).Inc()
}

// IncrementMint records a completed mint.
func (m *Metrics) IncrementMint() {
	m.Mints.Inc()
}

// IncrementRejection records a rejection.
func (m *Metrics) IncrementRejection() {
	m.Rejections.Inc()
}

// ObserveTransition records one status transition.
func (m *Metrics) ObserveTransition(from, to string) {
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// IncrementPollRun records a completed reconciliation pass.
func (m *Metrics) IncrementPollRun() {
	m.PollRuns.Inc()
}

// IncrementPollSkip records a tick skipped due to an in-flight pass.
func (m *Metrics) IncrementPollSkip() {
	m.PollSkips.Inc()
}

// IncrementPollFailure records a failed reconciliation pass.
func (m *Metrics) IncrementPollFailure() {
	m.PollFailures.Inc()
}

// IncrementEvent records an emitted lifecycle event.
func (m *Metrics) IncrementEvent(eventType string) {
	m.EventsEmitted.WithLabelValues(eventType).Inc()
}
