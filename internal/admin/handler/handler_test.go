package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"canopy/internal/admin/models"
	"canopy/internal/admin/service"
	"canopy/internal/admin/store"
	"canopy/internal/audit"
	auditmemory "canopy/internal/audit/store/memory"
	docmodels "canopy/internal/document/models"
	docstore "canopy/internal/document/store"
	"canopy/pkg/domain"
	"canopy/pkg/testutil"
)

var handlerNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type HandlerSuite struct {
	suite.Suite

	users       *store.Users
	credentials *store.Credentials
	documents   *docstore.InMemory
	auditLog    *auditmemory.Store
	router      *chi.Mux
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.users = store.NewUsers()
	s.credentials = store.NewCredentials()
	s.documents = docstore.NewInMemory()
	s.auditLog = auditmemory.New()

	svc, err := service.New(s.users, s.credentials, s.documents, s.auditLog,
		service.WithClock(func(context.Context) time.Time { return handlerNow }),
	)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(svc, logger)

	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) asAdmin(req *http.Request) *http.Request {
	return testutil.WithActor(req, "admin-1", "root@example.com", string(domain.RoleAdmin))
}

func (s *HandlerSuite) asIndividual(req *http.Request) *http.Request {
	return testutil.WithActor(req, "user-1", "user@example.com", string(domain.RoleIndividual))
}

// seedUser inserts a user directly into the store so tests do not depend on
// the create endpoint.
func (s *HandlerSuite) seedUser(email string, role domain.Role) *models.User {
	user, err := models.NewUser(email, "Seeded User", role, handlerNow)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Upsert(context.Background(), user))
	if role == domain.RoleVerifier {
		cred := models.NewPendingCredential(user.ID, handlerNow)
		s.Require().NoError(s.credentials.Upsert(context.Background(), cred))
	}
	return user
}

func (s *HandlerSuite) TestCreateUser() {
	body := map[string]string{"email": "ana@example.com", "name": "Ana", "role": "business"}
	req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/users", body))
	rec := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rec, http.StatusCreated)
	created := testutil.UnmarshalResponse[models.User](s.T(), rec)
	s.Equal("ana@example.com", created.Email)
	s.Equal(domain.RoleBusiness, created.Role)
	s.NotEmpty(created.ID)

	s.Run("duplicate email conflicts", func() {
		req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/users", body))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "conflict")
	})

	s.Run("invalid role rejected", func() {
		bad := map[string]string{"email": "bo@example.com", "name": "Bo", "role": "superuser"}
		req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/users", bad))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_failed")
	})
}

func (s *HandlerSuite) TestAuthenticationAndAuthorization() {
	s.Run("missing actor", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/users")
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("non-admin actor", func() {
		req := s.asIndividual(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/users"))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusForbidden, "forbidden")
	})
}

func (s *HandlerSuite) TestGetAndListUsers() {
	first := s.seedUser("first@example.com", domain.RoleIndividual)
	s.seedUser("second@example.com", domain.RoleBusiness)

	req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/users"))
	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rec)
	listed := testutil.UnmarshalResponse[UserListResponse](s.T(), rec)
	s.Equal(2, listed.Count)
	s.Len(listed.Users, 2)

	s.Run("get by id", func() {
		req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/users/"+first.ID))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rec)
		fetched := testutil.UnmarshalResponse[models.User](s.T(), rec)
		s.Equal(first.Email, fetched.Email)
	})

	s.Run("unknown id", func() {
		req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/users/ghost"))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestDeleteUser() {
	target := s.seedUser("gone@example.com", domain.RoleVerifier)

	req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodDelete, "/v1/admin/users/"+target.ID))
	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rec, http.StatusNoContent)

	_, err := s.users.Get(context.Background(), target.ID)
	s.Error(err)
	_, err = s.credentials.Get(context.Background(), target.ID)
	s.Error(err, "verifier credential removed with the user")

	s.Run("repeat delete", func() {
		req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodDelete, "/v1/admin/users/"+target.ID))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestChangeRole() {
	target := s.seedUser("promote@example.com", domain.RoleIndividual)

	body := map[string]string{"role": "verifier", "reason": "Passed certification"}
	req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/admin/users/"+target.ID+"/role", body))
	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rec)
	updated := testutil.UnmarshalResponse[models.User](s.T(), rec)
	s.Equal(domain.RoleVerifier, updated.Role)

	cred, err := s.credentials.Get(context.Background(), target.ID)
	s.Require().NoError(err, "promotion provisions a pending credential")
	s.Equal(models.CredentialPending, cred.Status)

	s.Run("own role rejected", func() {
		body := map[string]string{"role": "individual"}
		req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/admin/users/admin-1/role", body))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_failed")
	})

	s.Run("unknown role rejected", func() {
		body := map[string]string{"role": "wizard"}
		req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/admin/users/"+target.ID+"/role", body))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_failed")
	})
}

func (s *HandlerSuite) TestCredentialLifecycle() {
	verifier := s.seedUser("verify@example.com", domain.RoleVerifier)

	body := map[string]any{
		"certificationId":  "CERT-2026-117",
		"issuingAuthority": "Gold Standard",
		"validUntil":       handlerNow.AddDate(1, 0, 0).Format(time.RFC3339),
	}
	req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/admin/users/"+verifier.ID+"/credentials", body))
	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rec)
	cred := testutil.UnmarshalResponse[models.VerifierCredential](s.T(), rec)
	s.Equal(models.CredentialActive, cred.Status)
	s.Equal("CERT-2026-117", cred.CertificationID)

	s.Run("expired validity rejected", func() {
		stale := map[string]any{
			"certificationId":  "CERT-2020-001",
			"issuingAuthority": "Gold Standard",
			"validUntil":       handlerNow.AddDate(-1, 0, 0).Format(time.RFC3339),
		}
		req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/admin/users/"+verifier.ID+"/credentials", stale))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_failed")
	})

	s.Run("remove credentials", func() {
		req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodDelete, "/v1/admin/users/"+verifier.ID+"/credentials"))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rec, http.StatusNoContent)

		req = s.asAdmin(testutil.NewRequest(s.T(), http.MethodDelete, "/v1/admin/users/"+verifier.ID+"/credentials"))
		rec = testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestAuditLogQuery() {
	s.seedAuditTrail()

	req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/audit-logs"))
	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rec)
	all := testutil.UnmarshalResponse[AuditLogResponse](s.T(), rec)
	s.Equal(3, all.Count)
	s.Equal(audit.TypeUserDeleted, all.Entries[0].Type, "newest first")

	s.Run("filter by type", func() {
		req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/audit-logs?type=user_created"))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rec)
		filtered := testutil.UnmarshalResponse[AuditLogResponse](s.T(), rec)
		s.Equal(2, filtered.Count)
	})

	s.Run("filter by window and limit", func() {
		from := handlerNow.Add(1 * time.Minute).Format(time.RFC3339)
		req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/audit-logs?from="+from+"&limit=1"))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rec)
		windowed := testutil.UnmarshalResponse[AuditLogResponse](s.T(), rec)
		s.Equal(1, windowed.Count)
	})

	s.Run("unknown type rejected", func() {
		req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/audit-logs?type=meteor_strike"))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_failed")
	})

	s.Run("malformed from rejected", func() {
		req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/audit-logs?from=yesterday"))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_failed")
	})
}

func (s *HandlerSuite) seedAuditTrail() {
	entries := []audit.Entry{
		audit.NewEntry(audit.TypeUserCreated, "admin-1", "root@example.com", "u-1", nil, handlerNow),
		audit.NewEntry(audit.TypeUserCreated, "admin-1", "root@example.com", "u-2", nil, handlerNow.Add(1*time.Minute)),
		audit.NewEntry(audit.TypeUserDeleted, "admin-1", "root@example.com", "u-1", nil, handlerNow.Add(2*time.Minute)),
	}
	for _, e := range entries {
		s.Require().NoError(s.auditLog.Append(context.Background(), e))
	}
}

func (s *HandlerSuite) TestSystemStats() {
	s.seedUser("one@example.com", domain.RoleIndividual)
	s.seedUser("two@example.com", domain.RoleVerifier)

	req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/v1/admin/stats"))
	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rec)
	stats := testutil.UnmarshalResponse[service.Stats](s.T(), rec)
	s.Equal(2, stats.TotalUsers)
	s.Equal(1, stats.UsersByRole["verifier"])
	s.Equal(0, stats.ActiveVerifiers, "pending credentials are not active")
	s.Equal(1, stats.TotalCredentials)
}

func (s *HandlerSuite) TestBackupRestoreRoundTrip() {
	kept := s.seedUser("kept@example.com", domain.RoleIndividual)
	doc, err := docmodels.New("doc-1", "content-doc-1", kept.Email, "Kept User", domain.RoleIndividual, docmodels.Metadata{
		ProjectName: "Mangrove Restoration",
		Quantity:    100,
	}, handlerNow)
	s.Require().NoError(err)
	s.Require().NoError(s.documents.Upsert(context.Background(), doc))

	req := s.asAdmin(testutil.NewRequest(s.T(), http.MethodPost, "/v1/admin/backup"))
	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rec)
	payload := rec.Body.Bytes()

	// Diverge, then restore everything.
	s.Require().NoError(s.users.Delete(context.Background(), kept.ID))
	s.Require().NoError(s.documents.Delete(context.Background(), "doc-1"))

	restoreBody := map[string]any{
		"options": map[string]bool{"users": true, "documents": true, "auditLogs": true, "credentials": true},
		"backup":  json.RawMessage(payload),
	}
	req = s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/restore", restoreBody))
	rec = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rec)
	restored := testutil.UnmarshalResponse[RestoreResponse](s.T(), rec)
	s.True(restored.Restored)

	back, err := s.users.Get(context.Background(), kept.ID)
	s.Require().NoError(err)
	s.Equal("kept@example.com", back.Email)
	_, err = s.documents.Get(context.Background(), "doc-1")
	s.NoError(err)

	s.Run("missing backup payload", func() {
		body := map[string]any{"options": map[string]bool{"users": true}}
		req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/restore", body))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_failed")
	})

	s.Run("no sections selected", func() {
		body := map[string]any{
			"options": map[string]bool{},
			"backup":  json.RawMessage(payload),
		}
		req := s.asAdmin(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/admin/restore", body))
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_failed")
	})
}
