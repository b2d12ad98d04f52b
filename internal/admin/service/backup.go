package service

import (
	"context"
	"fmt"

	"canopy/internal/admin/models"
	"canopy/internal/audit"
	docmodels "canopy/internal/document/models"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/snapshot"
	"canopy/pkg/requestcontext"
)

// RestoreOptions selects which namespaces a restore replaces.
type RestoreOptions struct {
	Users       bool `json:"users"`
	Documents   bool `json:"documents"`
	AuditLogs   bool `json:"auditLogs"`
	Credentials bool `json:"credentials"`
}

// Any reports whether at least one namespace is selected.
func (o RestoreOptions) Any() bool {
	return o.Users || o.Documents || o.AuditLogs || o.Credentials
}

// CreateBackup captures every namespace into a versioned envelope. The
// backup_created entry is appended after the capture, so a backup never
// contains its own bookkeeping entry.
func (s *Service) CreateBackup(ctx context.Context, actor requestcontext.Actor) (*snapshot.Backup, error) {
	if err := s.authorize(actor, models.PermissionBackupRestoreData); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock(ctx)
	backup := &snapshot.Backup{Version: snapshot.BackupVersion, Timestamp: now}

	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to capture users")
	}
	backup.Users = snapshot.Pairs{}
	for _, user := range users {
		if backup.Users, err = backup.Users.Append(user.ID, user); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to capture users")
		}
	}

	docs, err := s.documents.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to capture documents")
	}
	backup.Documents = snapshot.Pairs{}
	for _, doc := range docs {
		if backup.Documents, err = backup.Documents.Append(doc.ID, doc); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to capture documents")
		}
	}

	entries, err := s.auditLog.List(ctx, audit.Filter{})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to capture audit log")
	}
	// List returns newest first; store the trail in append order.
	backup.AuditLogs = snapshot.Pairs{}
	for i := len(entries) - 1; i >= 0; i-- {
		if backup.AuditLogs, err = backup.AuditLogs.Append(entries[i].ID, entries[i]); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to capture audit log")
		}
	}

	creds, err := s.credentials.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to capture credentials")
	}
	backup.VerifierCredentials = snapshot.Pairs{}
	for _, cred := range creds {
		if backup.VerifierCredentials, err = backup.VerifierCredentials.Append(cred.UserID, cred); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to capture credentials")
		}
	}

	entry := audit.NewEntry(audit.TypeBackupCreated, actor.ID, actor.Email, "", map[string]any{
		"users":               len(backup.Users),
		"documents":           len(backup.Documents),
		"auditLogs":           len(backup.AuditLogs),
		"verifierCredentials": len(backup.VerifierCredentials),
	}, now)
	if err := s.recordAudit(ctx, entry); err != nil {
		return nil, err
	}

	s.incrementBackup()
	s.logger.InfoContext(ctx, "backup created",
		"users", len(backup.Users), "documents", len(backup.Documents),
		"audit_entries", len(backup.AuditLogs), "credentials", len(backup.VerifierCredentials),
		"actor_id", actor.ID)
	return backup, nil
}

// RestoreFromBackup replaces the selected namespaces with the backup's
// contents. Every selected section is decoded before any store is touched,
// so malformed input fails without changing state.
func (s *Service) RestoreFromBackup(ctx context.Context, actor requestcontext.Actor, data []byte, opts RestoreOptions) error {
	if err := s.authorize(actor, models.PermissionBackupRestoreData); err != nil {
		return err
	}
	if !opts.Any() {
		return dErrors.New(dErrors.CodeValidation, "at least one section must be selected")
	}

	backup, err := snapshot.ParseBackup(data)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid backup payload")
	}
	if backup.Version != snapshot.BackupVersion {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported backup version %q", backup.Version))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var users []*models.User
	if opts.Users {
		if users, err = decodeSection[models.User](backup.Users); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid users section")
		}
	}
	var docs []*docmodels.Document
	if opts.Documents {
		if docs, err = decodeSection[docmodels.Document](backup.Documents); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid documents section")
		}
	}
	var entries []audit.Entry
	if opts.AuditLogs {
		pointers, err := decodeSection[audit.Entry](backup.AuditLogs)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid audit log section")
		}
		entries = make([]audit.Entry, 0, len(pointers))
		for _, entry := range pointers {
			entries = append(entries, *entry)
		}
	}
	var creds []*models.VerifierCredential
	if opts.Credentials {
		if creds, err = decodeSection[models.VerifierCredential](backup.VerifierCredentials); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid credentials section")
		}
	}

	if opts.Users {
		if err := s.users.ReplaceAll(ctx, users); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore users")
		}
	}
	if opts.Documents {
		if err := s.documents.ReplaceAll(ctx, docs); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore documents")
		}
		if err := s.documents.Persist(ctx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist restored documents")
		}
	}
	if opts.AuditLogs {
		if err := s.auditLog.ReplaceAll(ctx, entries); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore audit log")
		}
	}
	if opts.Credentials {
		if err := s.credentials.ReplaceAll(ctx, creds); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore credentials")
		}
	}

	entry := audit.NewEntry(audit.TypeDataRestored, actor.ID, actor.Email, "", map[string]any{
		"users":       opts.Users,
		"documents":   opts.Documents,
		"auditLogs":   opts.AuditLogs,
		"credentials": opts.Credentials,
	}, s.clock(ctx))
	if err := s.recordAudit(ctx, entry); err != nil {
		return err
	}

	s.incrementRestore()
	s.logger.InfoContext(ctx, "data restored from backup",
		"users", opts.Users, "documents", opts.Documents,
		"audit_logs", opts.AuditLogs, "credentials", opts.Credentials,
		"actor_id", actor.ID)
	return nil
}

// decodeSection unmarshals every pair value in a namespace section.
func decodeSection[T any](pairs snapshot.Pairs) ([]*T, error) {
	out := make([]*T, 0, len(pairs))
	for i := range pairs {
		var v T
		if err := pairs.Decode(i, &v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, nil
}
