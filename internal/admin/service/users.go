package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"canopy/internal/admin/models"
	"canopy/internal/audit"
	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/requestcontext"
)

// CreateUserInput describes a new managed account.
type CreateUserInput struct {
	Email string
	Name  string
	Role  domain.Role
}

// CreateUser registers a new account. Creating a verifier also creates its
// pending credential, the same as a promotion would.
func (s *Service) CreateUser(ctx context.Context, actor requestcontext.Actor, in CreateUserInput) (*models.User, error) {
	if err := s.authorize(actor, models.PermissionManageUsers); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := models.NewUser(in.Email, in.Name, in.Role, s.clock(ctx))
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, user.Email); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "a user with this email already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check email availability")
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store user")
	}
	if user.Role == domain.RoleVerifier {
		if err := s.credentials.Upsert(ctx, models.NewPendingCredential(user.ID, s.clock(ctx))); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create pending credential")
		}
	}

	entry := audit.NewEntry(audit.TypeUserCreated, actor.ID, actor.Email, user.ID, map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	}, s.clock(ctx))
	if err := s.recordAudit(ctx, entry); err != nil {
		return nil, err
	}

	s.incrementUserOperation("create")
	s.logger.InfoContext(ctx, "user created",
		"user_id", user.ID, "role", user.Role, "actor_id", actor.ID)
	return user, nil
}

// DeleteUser removes an account along with any verifier credential it holds.
func (s *Service) DeleteUser(ctx context.Context, actor requestcontext.Actor, targetID string) error {
	if err := s.authorize(actor, models.PermissionManageUsers); err != nil {
		return err
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.users.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}

	if err := s.credentials.Delete(ctx, targetID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove verifier credential")
	}
	if err := s.users.Delete(ctx, targetID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user")
	}

	entry := audit.NewEntry(audit.TypeUserDeleted, actor.ID, actor.Email, targetID, map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	}, s.clock(ctx))
	if err := s.recordAudit(ctx, entry); err != nil {
		return err
	}

	s.incrementUserOperation("delete")
	s.logger.InfoContext(ctx, "user deleted",
		"user_id", targetID, "actor_id", actor.ID)
	return nil
}

// ChangeUserRole moves an account to a new role. Promotion to verifier
// creates a pending credential; demotion from verifier deletes the
// credential. Admins cannot change their own role.
func (s *Service) ChangeUserRole(ctx context.Context, actor requestcontext.Actor, targetID string, newRole domain.Role, reason string) (*models.User, error) {
	if err := s.authorize(actor, models.PermissionChangeUserRoles); err != nil {
		return nil, err
	}
	if !newRole.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("role %q is not recognized", newRole))
	}
	if targetID == actor.ID {
		return nil, dErrors.New(dErrors.CodeValidation, "Cannot change your own role")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.users.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}

	oldRole := user.Role
	now := s.clock(ctx)
	user.Role = newRole
	user.UpdatedAt = now
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}

	switch {
	case newRole == domain.RoleVerifier && oldRole != domain.RoleVerifier:
		if _, err := s.credentials.Get(ctx, targetID); errors.Is(err, sentinel.ErrNotFound) {
			if err := s.credentials.Upsert(ctx, models.NewPendingCredential(targetID, now)); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create pending credential")
			}
		}
	case oldRole == domain.RoleVerifier && newRole != domain.RoleVerifier:
		if err := s.credentials.Delete(ctx, targetID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove verifier credential")
		}
	}

	entry := audit.NewEntry(audit.TypeRoleChange, actor.ID, actor.Email, targetID, map[string]any{
		"oldRole": string(oldRole),
		"newRole": string(newRole),
		"reason":  reason,
	}, now)
	if err := s.recordAudit(ctx, entry); err != nil {
		return nil, err
	}

	s.incrementRoleChange()
	s.logger.InfoContext(ctx, "user role changed",
		"user_id", targetID, "old_role", oldRole, "new_role", newRole, "actor_id", actor.ID)
	return user, nil
}

// GetUser returns one managed account.
func (s *Service) GetUser(ctx context.Context, actor requestcontext.Actor, targetID string) (*models.User, error) {
	if err := s.authorize(actor, models.PermissionManageUsers); err != nil {
		return nil, err
	}
	user, err := s.users.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	return user, nil
}

// ListUsers returns every managed account in creation order.
func (s *Service) ListUsers(ctx context.Context, actor requestcontext.Actor) ([]*models.User, error) {
	if err := s.authorize(actor, models.PermissionManageUsers); err != nil {
		return nil, err
	}
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}
