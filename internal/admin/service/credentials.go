package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"canopy/internal/admin/models"
	"canopy/internal/audit"
	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/requestcontext"
)

// CredentialInput carries the certification details for an assignment.
type CredentialInput struct {
	CertificationID  string
	IssuingAuthority string
	ValidUntil       time.Time
}

// Validate enforces that all fields are present and the validity window has
// not already closed.
func (in CredentialInput) Validate(now time.Time) error {
	if strings.TrimSpace(in.CertificationID) == "" {
		return dErrors.New(dErrors.CodeValidation, "certification_id is required")
	}
	if strings.TrimSpace(in.IssuingAuthority) == "" {
		return dErrors.New(dErrors.CodeValidation, "issuing_authority is required")
	}
	if in.ValidUntil.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "valid_until is required")
	}
	if !in.ValidUntil.After(now) {
		return dErrors.New(dErrors.CodeValidation, "valid_until must be in the future")
	}
	return nil
}

// AssignVerifierCredentials populates the target verifier's credential. The
// first assignment activates the pending credential and is audited as an
// assignment; later ones are audited as updates.
func (s *Service) AssignVerifierCredentials(ctx context.Context, actor requestcontext.Actor, targetID string, in CredentialInput) (*models.VerifierCredential, error) {
	if err := s.authorize(actor, models.PermissionManageCredentials); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock(ctx)
	if err := in.Validate(now); err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if user.Role != domain.RoleVerifier {
		return nil, dErrors.New(dErrors.CodeValidation, "target user is not a verifier")
	}

	cred, err := s.credentials.Get(ctx, targetID)
	firstAssignment := false
	switch {
	case err == nil:
		firstAssignment = cred.Status == models.CredentialPending
	case errors.Is(err, sentinel.ErrNotFound):
		cred = models.NewPendingCredential(targetID, now)
		firstAssignment = true
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up credential")
	}

	cred.Assign(strings.TrimSpace(in.CertificationID), strings.TrimSpace(in.IssuingAuthority), in.ValidUntil, now)
	if err := s.credentials.Upsert(ctx, cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
	}

	entryType := audit.TypeCredentialsUpdated
	if firstAssignment {
		entryType = audit.TypeVerifierAssigned
	}
	entry := audit.NewEntry(entryType, actor.ID, actor.Email, targetID, map[string]any{
		"certificationId":  cred.CertificationID,
		"issuingAuthority": cred.IssuingAuthority,
		"validUntil":       cred.ValidUntil.Format(time.RFC3339),
	}, now)
	if err := s.recordAudit(ctx, entry); err != nil {
		return nil, err
	}

	s.incrementCredentialOperation("assign")
	s.logger.InfoContext(ctx, "verifier credentials assigned",
		"user_id", targetID, "certification_id", cred.CertificationID, "actor_id", actor.ID)
	return cred, nil
}

// RemoveVerifierCredentials deletes the target's credential outright.
func (s *Service) RemoveVerifierCredentials(ctx context.Context, actor requestcontext.Actor, targetID string) error {
	if err := s.authorize(actor, models.PermissionManageCredentials); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.credentials.Delete(ctx, targetID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "verifier credential not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove credential")
	}

	entry := audit.NewEntry(audit.TypeVerifierRemoved, actor.ID, actor.Email, targetID, nil, s.clock(ctx))
	if err := s.recordAudit(ctx, entry); err != nil {
		return err
	}

	s.incrementCredentialOperation("remove")
	s.logger.InfoContext(ctx, "verifier credentials removed",
		"user_id", targetID, "actor_id", actor.ID)
	return nil
}

// ValidateCredentials reports whether the target's credential currently
// authorizes verification work. The check is ungated so lifecycle operations
// can consult it for any caller.
func (s *Service) ValidateCredentials(ctx context.Context, targetID string) (models.Validation, error) {
	cred, err := s.credentials.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Validation{}, dErrors.New(dErrors.CodeNotFound, "verifier credential not found")
		}
		return models.Validation{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up credential")
	}
	return cred.Validate(s.clock(ctx)), nil
}
