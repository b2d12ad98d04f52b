// Package service implements the administration operations: user account
// management, verifier credential handling, audit log access, system stats,
// and backup/restore. Every operation is gated on the acting admin's
// permissions before any state is read or written.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"canopy/internal/admin/metrics"
	"canopy/internal/admin/models"
	"canopy/internal/audit"
	docmodels "canopy/internal/document/models"
	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/requestcontext"
)

// UserStore is the slice of the user store the service depends on.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]*models.User, error)
	ReplaceAll(ctx context.Context, users []*models.User) error
}

// CredentialStore is the slice of the credential store the service depends on.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (*models.VerifierCredential, error)
	Upsert(ctx context.Context, cred *models.VerifierCredential) error
	Delete(ctx context.Context, userID string) error
	ListAll(ctx context.Context) ([]*models.VerifierCredential, error)
	ReplaceAll(ctx context.Context, creds []*models.VerifierCredential) error
}

// DocumentStore is the slice of the document record store the service needs
// for stats and backup/restore. Restores call Persist explicitly because the
// record store batches durability.
type DocumentStore interface {
	ListAll(ctx context.Context) ([]*docmodels.Document, error)
	ReplaceAll(ctx context.Context, docs []*docmodels.Document) error
	Persist(ctx context.Context) error
}

// AuditPublisher mirrors the Kafka audit publisher. Publishing is
// best-effort telemetry; the audit store append is the source of truth.
type AuditPublisher interface {
	Publish(ctx context.Context, entry audit.Entry) error
}

// Service orchestrates administration operations. A single mutex serializes
// mutating operations because they read and write across several stores;
// per-store locks alone cannot keep a promotion's user update and credential
// creation atomic.
type Service struct {
	mu          sync.Mutex
	users       UserStore
	credentials CredentialStore
	documents   DocumentStore
	auditLog    audit.Store
	publisher   AuditPublisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	clock       func(ctx context.Context) time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithClock overrides the operation timestamp source.
// Defaults to requestcontext.Now.
func WithClock(clock func(ctx context.Context) time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(users UserStore, credentials CredentialStore, documents DocumentStore, auditLog audit.Store, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if auditLog == nil {
		return nil, fmt.Errorf("audit store is required")
	}

	s := &Service{
		users:       users,
		credentials: credentials,
		documents:   documents,
		auditLog:    auditLog,
		logger:      slog.Default(),
		clock:       requestcontext.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// authorize enforces the permission gate. It runs before any read or write,
// so a denied call leaves no trace in state or the audit log.
func (s *Service) authorize(actor requestcontext.Actor, perm models.Permission) error {
	role := domain.Role(actor.Role)
	if role != domain.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "administrator role required")
	}
	if !models.RoleHasPermission(role, perm) {
		return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("missing the %s permission", perm))
	}
	return nil
}

// recordAudit appends the entry to the durable trail and then forwards it to
// the publisher. A failed append fails the operation; a failed publish only
// logs, the trail already holds the entry.
func (s *Service) recordAudit(ctx context.Context, entry audit.Entry) error {
	if err := s.auditLog.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit entry")
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, entry); err != nil {
			s.logger.WarnContext(ctx, "failed to publish audit entry",
				"entry_type", entry.Type, "error", err)
		}
	}
	return nil
}

func (s *Service) incrementUserOperation(operation string) {
	if s.metrics != nil {
		s.metrics.IncrementUserOperation(operation)
	}
}

func (s *Service) incrementRoleChange() {
	if s.metrics != nil {
		s.metrics.IncrementRoleChange()
	}
}

func (s *Service) incrementCredentialOperation(operation string) {
	if s.metrics != nil {
		s.metrics.IncrementCredentialOperation(operation)
	}
}

func (s *Service) incrementBackup() {
	if s.metrics != nil {
		s.metrics.IncrementBackup()
	}
}

func (s *Service) incrementRestore() {
	if s.metrics != nil {
		s.metrics.IncrementRestore()
	}
}
