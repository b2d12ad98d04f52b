package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the administration module: account
// management, credential handling, and backup activity.
type Metrics struct {
	UserOperations       *prometheus.CounterVec
	RoleChanges          prometheus.Counter
	CredentialOperations *prometheus.CounterVec
	Backups              prometheus.Counter
	Restores             prometheus.Counter
}

// New creates a new Metrics instance with all administration metrics
// registered on the default registry.
func New() *Metrics {
	return &Metrics{
		UserOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_admin_user_operations_total",
			Help: "Total user management operations by kind",
		}, []string{"operation"}),
		RoleChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_admin_role_changes_total",
			Help: "Total user role changes applied",
		}),
		CredentialOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_admin_credential_operations_total",
			Help: "Total verifier credential operations by kind",
		}, []string{"operation"}),
		Backups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_admin_backups_total",
			Help: "Total system backups created",
		}),
		Restores: promauto.NewCounter(prometheus.CounterOpts{
			Name: "canopy_admin_restores_total",
			Help: "Total restores applied from backup",
		}),
	}
}

// IncrementUserOperation records one user management operation.
func (m *Metrics) IncrementUserOperation(operation string) {
	m.UserOperations.WithLabelValues(operation).Inc()
}

// IncrementRoleChange records one applied role change.
func (m *Metrics) IncrementRoleChange() {
	m.RoleChanges.Inc()
}

// IncrementCredentialOperation records one credential operation.
func (m *Metrics) IncrementCredentialOperation(operation string) {
	m.CredentialOperations.WithLabelValues(operation).Inc()
}

// IncrementBackup records one created backup.
func (m *Metrics) IncrementBackup() {
	m.Backups.Inc()
}

// IncrementRestore records one applied restore.
func (m *Metrics) IncrementRestore() {
	m.Restores.Inc()
}
