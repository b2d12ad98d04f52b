package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"canopy/internal/admin/models"
	"canopy/internal/admin/store"
	"canopy/internal/audit"
	auditmemory "canopy/internal/audit/store/memory"
	docmodels "canopy/internal/document/models"
	docstore "canopy/internal/document/store"
	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/requestcontext"
)

// capturePublisher records forwarded audit entries for assertions.
type capturePublisher struct {
	entries []audit.Entry
	err     error
}

func (c *capturePublisher) Publish(_ context.Context, entry audit.Entry) error {
	if c.err != nil {
		return c.err
	}
	c.entries = append(c.entries, entry)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	ctx         context.Context
	users       *store.Users
	credentials *store.Credentials
	documents   *docstore.InMemory
	auditLog    *auditmemory.Store
	published   *capturePublisher
	svc         *Service
	now         time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s.users = store.NewUsers()
	s.credentials = store.NewCredentials()
	s.documents = docstore.NewInMemory()
	s.auditLog = auditmemory.New()
	s.published = &capturePublisher{}

	svc, err := New(s.users, s.credentials, s.documents, s.auditLog,
		WithAuditPublisher(s.published),
		WithClock(func(context.Context) time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) admin() requestcontext.Actor {
	return requestcontext.Actor{ID: "admin-1", Email: "root@example.com", Role: string(domain.RoleAdmin)}
}

func (s *ServiceSuite) verifierActor() requestcontext.Actor {
	return requestcontext.Actor{ID: "verifier-1", Email: "auditor@example.com", Role: string(domain.RoleVerifier)}
}

func (s *ServiceSuite) createUser(email string, role domain.Role) *models.User {
	user, err := s.svc.CreateUser(s.ctx, s.admin(), CreateUserInput{
		Email: email,
		Name:  "Account " + email,
		Role:  role,
	})
	s.Require().NoError(err)
	return user
}

func (s *ServiceSuite) auditCount() int {
	count, err := s.auditLog.Count(s.ctx)
	s.Require().NoError(err)
	return count
}

func (s *ServiceSuite) latestEntry() audit.Entry {
	entries, err := s.auditLog.List(s.ctx, audit.Filter{Limit: 1})
	s.Require().NoError(err)
	s.Require().NotEmpty(entries)
	return entries[0]
}

func (s *ServiceSuite) futureCredential() CredentialInput {
	return CredentialInput{
		CertificationID:  "CERT-2026-117",
		IssuingAuthority: "Gold Standard",
		ValidUntil:       s.now.AddDate(1, 0, 0),
	}
}

func (s *ServiceSuite) TestNewRequiresCollaborators() {
	_, err := New(nil, s.credentials, s.documents, s.auditLog)
	s.ErrorContains(err, "user store is required")
	_, err = New(s.users, nil, s.documents, s.auditLog)
	s.ErrorContains(err, "credential store is required")
	_, err = New(s.users, s.credentials, nil, s.auditLog)
	s.ErrorContains(err, "document store is required")
	_, err = New(s.users, s.credentials, s.documents, nil)
	s.ErrorContains(err, "audit store is required")
}

func (s *ServiceSuite) TestPermissionGateBlocksNonAdmins() {
	target := s.createUser("worker@example.com", domain.RoleIndividual)
	baseline := s.auditCount()
	outsider := s.verifierActor()

	operations := map[string]func() error{
		"create user": func() error {
			_, err := s.svc.CreateUser(s.ctx, outsider, CreateUserInput{Email: "x@example.com", Name: "X", Role: domain.RoleIndividual})
			return err
		},
		"delete user": func() error {
			return s.svc.DeleteUser(s.ctx, outsider, target.ID)
		},
		"change role": func() error {
			_, err := s.svc.ChangeUserRole(s.ctx, outsider, target.ID, domain.RoleVerifier, "promotion")
			return err
		},
		"assign credentials": func() error {
			_, err := s.svc.AssignVerifierCredentials(s.ctx, outsider, target.ID, s.futureCredential())
			return err
		},
		"remove credentials": func() error {
			return s.svc.RemoveVerifierCredentials(s.ctx, outsider, target.ID)
		},
		"view audit logs": func() error {
			_, err := s.svc.GetAuditLogs(s.ctx, outsider, audit.Filter{})
			return err
		},
		"view stats": func() error {
			_, err := s.svc.GetSystemStats(s.ctx, outsider)
			return err
		},
		"create backup": func() error {
			_, err := s.svc.CreateBackup(s.ctx, outsider)
			return err
		},
		"restore": func() error {
			return s.svc.RestoreFromBackup(s.ctx, outsider, []byte(`{"version":"1.0.0"}`), RestoreOptions{Users: true})
		},
	}
	for name, op := range operations {
		err := op()
		s.Require().Error(err, name)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "%s must be forbidden, got %v", name, err)
	}

	s.Equal(baseline, s.auditCount(), "denied calls must not generate audit entries")
	listed, err := s.users.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(listed, 1, "denied calls must not mutate state")
	s.Equal(domain.RoleIndividual, listed[0].Role)
}

func (s *ServiceSuite) TestCreateUser() {
	user := s.createUser("ana@example.com", domain.RoleIndividual)
	s.NotEmpty(user.ID)
	s.Equal("ana@example.com", user.Email)
	s.Equal(s.now, user.CreatedAt)

	entry := s.latestEntry()
	s.Equal(audit.TypeUserCreated, entry.Type)
	s.Equal("admin-1", entry.ActorID)
	s.Equal(user.ID, entry.TargetID)
	s.Equal("individual", entry.Details["role"])
	s.Len(s.published.entries, 1, "entry must be forwarded to the publisher")

	s.Run("duplicate email conflicts regardless of case", func() {
		_, err := s.svc.CreateUser(s.ctx, s.admin(), CreateUserInput{
			Email: "ANA@example.com",
			Name:  "Shadow",
			Role:  domain.RoleBusiness,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("creating a verifier creates a pending credential", func() {
		verifier := s.createUser("veri@example.com", domain.RoleVerifier)
		cred, err := s.credentials.Get(s.ctx, verifier.ID)
		s.Require().NoError(err)
		s.Equal(models.CredentialPending, cred.Status)
	})

	s.Run("bad input is rejected", func() {
		_, err := s.svc.CreateUser(s.ctx, s.admin(), CreateUserInput{Email: "no-at-sign", Name: "X", Role: domain.RoleIndividual})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestDeleteUserRemovesCredential() {
	verifier := s.createUser("veri@example.com", domain.RoleVerifier)

	s.Require().NoError(s.svc.DeleteUser(s.ctx, s.admin(), verifier.ID))

	_, err := s.users.Get(s.ctx, verifier.ID)
	s.Error(err)
	_, err = s.credentials.Get(s.ctx, verifier.ID)
	s.Error(err, "credential must be deleted with the user")

	entry := s.latestEntry()
	s.Equal(audit.TypeUserDeleted, entry.Type)
	s.Equal(verifier.ID, entry.TargetID)

	s.Run("unknown user", func() {
		err := s.svc.DeleteUser(s.ctx, s.admin(), "ghost")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestPromotionScenario() {
	target := s.createUser("farmer@example.com", domain.RoleIndividual)

	updated, err := s.svc.ChangeUserRole(s.ctx, s.admin(), target.ID, domain.RoleVerifier, "Promotion")
	s.Require().NoError(err)
	s.Equal(domain.RoleVerifier, updated.Role)

	cred, err := s.credentials.Get(s.ctx, target.ID)
	s.Require().NoError(err)
	s.Equal(models.CredentialPending, cred.Status)

	entry := s.latestEntry()
	s.Equal(audit.TypeRoleChange, entry.Type)
	s.Equal(target.ID, entry.TargetID)
	s.Equal("individual", entry.Details["oldRole"])
	s.Equal("verifier", entry.Details["newRole"])
	s.Equal("Promotion", entry.Details["reason"])
}

func (s *ServiceSuite) TestChangeUserRoleRejections() {
	target := s.createUser("farmer@example.com", domain.RoleIndividual)

	s.Run("own role", func() {
		_, err := s.svc.ChangeUserRole(s.ctx, s.admin(), "admin-1", domain.RoleIndividual, "oops")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.ErrorContains(err, "Cannot change your own role")
	})

	s.Run("unknown role", func() {
		_, err := s.svc.ChangeUserRole(s.ctx, s.admin(), target.ID, domain.Role("root"), "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown user", func() {
		_, err := s.svc.ChangeUserRole(s.ctx, s.admin(), "ghost", domain.RoleBusiness, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDemotionDeletesCredential() {
	verifier := s.createUser("veri@example.com", domain.RoleVerifier)
	_, err := s.svc.AssignVerifierCredentials(s.ctx, s.admin(), verifier.ID, s.futureCredential())
	s.Require().NoError(err)

	_, err = s.svc.ChangeUserRole(s.ctx, s.admin(), verifier.ID, domain.RoleBusiness, "stepping down")
	s.Require().NoError(err)

	_, err = s.credentials.Get(s.ctx, verifier.ID)
	s.Error(err, "demotion must delete the credential")
}

func (s *ServiceSuite) TestAssignVerifierCredentials() {
	verifier := s.createUser("veri@example.com", domain.RoleVerifier)
	individual := s.createUser("ind@example.com", domain.RoleIndividual)

	s.Run("valid_until of yesterday is rejected", func() {
		in := s.futureCredential()
		in.ValidUntil = s.now.AddDate(0, 0, -1)
		_, err := s.svc.AssignVerifierCredentials(s.ctx, s.admin(), verifier.ID, in)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.ErrorContains(err, "valid_until must be in the future")
	})

	s.Run("missing fields are rejected", func() {
		in := s.futureCredential()
		in.IssuingAuthority = " "
		_, err := s.svc.AssignVerifierCredentials(s.ctx, s.admin(), verifier.ID, in)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-verifier target is rejected", func() {
		_, err := s.svc.AssignVerifierCredentials(s.ctx, s.admin(), individual.ID, s.futureCredential())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.ErrorContains(err, "not a verifier")
	})

	s.Run("first assignment activates and audits as assignment", func() {
		cred, err := s.svc.AssignVerifierCredentials(s.ctx, s.admin(), verifier.ID, s.futureCredential())
		s.Require().NoError(err)
		s.Equal(models.CredentialActive, cred.Status)
		s.Equal("CERT-2026-117", cred.CertificationID)
		s.Equal(audit.TypeVerifierAssigned, s.latestEntry().Type)
	})

	s.Run("re-assignment preserves CreatedAt and audits as update", func() {
		before, err := s.credentials.Get(s.ctx, verifier.ID)
		s.Require().NoError(err)

		s.now = s.now.Add(72 * time.Hour)
		in := s.futureCredential()
		in.CertificationID = "CERT-2026-118"
		cred, err := s.svc.AssignVerifierCredentials(s.ctx, s.admin(), verifier.ID, in)
		s.Require().NoError(err)
		s.Equal("CERT-2026-118", cred.CertificationID)
		s.Equal(before.CreatedAt, cred.CreatedAt)
		s.Equal(audit.TypeCredentialsUpdated, s.latestEntry().Type)
	})
}

func (s *ServiceSuite) TestRemoveVerifierCredentials() {
	verifier := s.createUser("veri@example.com", domain.RoleVerifier)

	s.Require().NoError(s.svc.RemoveVerifierCredentials(s.ctx, s.admin(), verifier.ID))
	s.Equal(audit.TypeVerifierRemoved, s.latestEntry().Type)

	err := s.svc.RemoveVerifierCredentials(s.ctx, s.admin(), verifier.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "second removal finds nothing")
}

func (s *ServiceSuite) TestValidateCredentials() {
	verifier := s.createUser("veri@example.com", domain.RoleVerifier)

	result, err := s.svc.ValidateCredentials(s.ctx, verifier.ID)
	s.Require().NoError(err)
	s.False(result.Valid)
	s.Equal("Credentials not yet assigned", result.Reason)

	_, err = s.svc.AssignVerifierCredentials(s.ctx, s.admin(), verifier.ID, s.futureCredential())
	s.Require().NoError(err)

	result, err = s.svc.ValidateCredentials(s.ctx, verifier.ID)
	s.Require().NoError(err)
	s.True(result.Valid)

	s.now = s.now.AddDate(1, 0, 1)
	result, err = s.svc.ValidateCredentials(s.ctx, verifier.ID)
	s.Require().NoError(err)
	s.False(result.Valid)
	s.Equal("Credentials expired", result.Reason)

	_, err = s.svc.ValidateCredentials(s.ctx, "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGetAuditLogs() {
	target := s.createUser("farmer@example.com", domain.RoleIndividual)
	_, err := s.svc.ChangeUserRole(s.ctx, s.admin(), target.ID, domain.RoleBusiness, "upgrade")
	s.Require().NoError(err)

	all, err := s.svc.GetAuditLogs(s.ctx, s.admin(), audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(audit.TypeRoleChange, all[0].Type, "newest entry must come first")

	roleChanges, err := s.svc.GetAuditLogs(s.ctx, s.admin(), audit.Filter{Type: audit.TypeRoleChange})
	s.Require().NoError(err)
	s.Len(roleChanges, 1)
}

func (s *ServiceSuite) seedDocument(id string, attest bool) {
	doc, err := docmodels.New(id, "content-"+id, "farmer@example.com", "Farmer", domain.RoleIndividual, docmodels.Metadata{
		ProjectName: "Mangrove Restoration",
		Quantity:    100,
	}, s.now)
	s.Require().NoError(err)
	if attest {
		doc.ApplyAttestation(docmodels.Attestation{
			Verifier:          "auditor@example.com",
			Signature:         "0xfeed",
			ExternalProjectID: "PRJ-7",
			ExternalSerial:    "SER-2026-001",
			Amount:            100,
		}, s.now)
	}
	s.Require().NoError(s.documents.Upsert(s.ctx, doc))
}

func (s *ServiceSuite) TestGetSystemStats() {
	s.createUser("one@example.com", domain.RoleIndividual)
	s.createUser("two@example.com", domain.RoleBusiness)
	active := s.createUser("veri@example.com", domain.RoleVerifier)
	s.createUser("pending@example.com", domain.RoleVerifier)
	_, err := s.svc.AssignVerifierCredentials(s.ctx, s.admin(), active.ID, s.futureCredential())
	s.Require().NoError(err)

	s.seedDocument("doc-1", false)
	s.seedDocument("doc-2", true)

	stats, err := s.svc.GetSystemStats(s.ctx, s.admin())
	s.Require().NoError(err)

	s.Equal(4, stats.TotalUsers)
	s.Equal(map[string]int{"individual": 1, "business": 1, "verifier": 2}, stats.UsersByRole)
	s.Equal(1, stats.ActiveVerifiers, "pending credentials do not count as active")
	s.Equal(2, stats.TotalCredentials)
	s.Equal(5, stats.AuditEntries, "four creations plus one assignment")
	s.Equal(2, stats.TotalDocuments)
	s.Equal(map[string]int{"pending": 1, "attested": 1}, stats.DocumentsByStatus)
	s.Equal(s.now, stats.GeneratedAt)
}

func (s *ServiceSuite) TestBackupRestoreRoundTrip() {
	s.createUser("keep@example.com", domain.RoleIndividual)
	verifier := s.createUser("veri@example.com", domain.RoleVerifier)
	_, err := s.svc.AssignVerifierCredentials(s.ctx, s.admin(), verifier.ID, s.futureCredential())
	s.Require().NoError(err)
	s.seedDocument("doc-1", true)

	backup, err := s.svc.CreateBackup(s.ctx, s.admin())
	s.Require().NoError(err)
	s.Equal("1.0.0", backup.Version)
	s.Len(backup.Users, 2)
	s.Len(backup.VerifierCredentials, 1)
	s.Len(backup.Documents, 1)
	s.Len(backup.AuditLogs, 3, "backup captures the trail before its own entry")
	s.Equal(audit.TypeBackupCreated, s.latestEntry().Type)

	data, err := json.Marshal(backup)
	s.Require().NoError(err)

	// Diverge from the captured state.
	s.Require().NoError(s.svc.DeleteUser(s.ctx, s.admin(), verifier.ID))
	s.seedDocument("doc-2", false)

	s.Require().NoError(s.svc.RestoreFromBackup(s.ctx, s.admin(), data, RestoreOptions{
		Users: true, Documents: true, AuditLogs: true, Credentials: true,
	}))

	users, err := s.users.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(users, 2, "deleted user must be back")

	cred, err := s.credentials.Get(s.ctx, verifier.ID)
	s.Require().NoError(err)
	s.Equal(models.CredentialActive, cred.Status)

	docs, err := s.documents.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(docs, 1, "documents added after the backup are gone")
	s.Equal("doc-1", docs[0].ID)
	s.Equal(docmodels.StatusAttested, docs[0].Status)

	s.Equal(4, s.auditCount(), "restored trail plus the data_restored entry")
	s.Equal(audit.TypeDataRestored, s.latestEntry().Type)
}

func (s *ServiceSuite) TestRestoreSelectiveSections() {
	kept := s.createUser("keep@example.com", domain.RoleIndividual)
	s.seedDocument("doc-1", false)

	backup, err := s.svc.CreateBackup(s.ctx, s.admin())
	s.Require().NoError(err)
	data, err := json.Marshal(backup)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteUser(s.ctx, s.admin(), kept.ID))
	s.seedDocument("doc-2", false)

	s.Require().NoError(s.svc.RestoreFromBackup(s.ctx, s.admin(), data, RestoreOptions{Users: true}))

	users, err := s.users.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 1, "users section restored")
	s.Equal(kept.ID, users[0].ID)

	docs, err := s.documents.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(docs, 2, "documents section untouched")
}

func (s *ServiceSuite) TestRestoreRejectsBadInput() {
	s.createUser("keep@example.com", domain.RoleIndividual)
	baseline := s.auditCount()

	s.Run("missing version", func() {
		err := s.svc.RestoreFromBackup(s.ctx, s.admin(), []byte(`{"users":[]}`), RestoreOptions{Users: true})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unsupported version", func() {
		err := s.svc.RestoreFromBackup(s.ctx, s.admin(), []byte(`{"version":"9.9.9"}`), RestoreOptions{Users: true})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.ErrorContains(err, "unsupported backup version")
	})

	s.Run("no sections selected", func() {
		err := s.svc.RestoreFromBackup(s.ctx, s.admin(), []byte(`{"version":"1.0.0"}`), RestoreOptions{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("corrupt section fails before any replacement", func() {
		err := s.svc.RestoreFromBackup(s.ctx, s.admin(),
			[]byte(`{"version":"1.0.0","users":[["u-1",{"email":42}]]}`), RestoreOptions{Users: true})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	users, err := s.users.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(users, 1, "failed restores must not touch state")
	s.Equal(baseline, s.auditCount(), "failed restores must not audit")
}

func (s *ServiceSuite) TestPublisherFailureDoesNotFailOperation() {
	s.published.err = errors.New("broker down")

	user, err := s.svc.CreateUser(s.ctx, s.admin(), CreateUserInput{
		Email: "ana@example.com", Name: "Ana", Role: domain.RoleIndividual,
	})
	s.Require().NoError(err, "publish failures are telemetry, not operation failures")
	s.NotNil(user)
	s.Equal(1, s.auditCount(), "trail append still happened")
}
