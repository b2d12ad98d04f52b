package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"canopy/internal/admin/models"
	"canopy/internal/platform/kv"
	"canopy/pkg/domain"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/platform/snapshot"
)

var storeNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type UsersSuite struct {
	suite.Suite
	ctx   context.Context
	store *Users
}

func (s *UsersSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewUsers()
}

func TestUsersSuite(t *testing.T) {
	suite.Run(t, new(UsersSuite))
}

func (s *UsersSuite) seedUser(email string, role domain.Role) *models.User {
	user, err := models.NewUser(email, "Account "+email, role, storeNow)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Upsert(s.ctx, user))
	return user
}

func (s *UsersSuite) TestGetAndGetByEmail() {
	created := s.seedUser("ana@example.com", domain.RoleIndividual)

	byID, err := s.store.Get(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("ana@example.com", byID.Email)

	byEmail, err := s.store.GetByEmail(s.ctx, "ana@example.com")
	s.Require().NoError(err)
	s.Equal(created.ID, byEmail.ID)

	_, err = s.store.Get(s.ctx, "no-such-id")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.GetByEmail(s.ctx, "nobody@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *UsersSuite) TestUpsertReindexesChangedEmail() {
	user := s.seedUser("old@example.com", domain.RoleBusiness)

	user.Email = "new@example.com"
	s.Require().NoError(s.store.Upsert(s.ctx, user))

	_, err := s.store.GetByEmail(s.ctx, "old@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound, "stale email index entry must be dropped")

	found, err := s.store.GetByEmail(s.ctx, "new@example.com")
	s.Require().NoError(err)
	s.Equal(user.ID, found.ID)
}

func (s *UsersSuite) TestReturnedRecordsAreCopies() {
	user := s.seedUser("ana@example.com", domain.RoleIndividual)

	got, err := s.store.Get(s.ctx, user.ID)
	s.Require().NoError(err)
	got.Role = domain.RoleAdmin

	again, err := s.store.Get(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(domain.RoleIndividual, again.Role)
}

func (s *UsersSuite) TestDeleteRemovesBothIndexes() {
	user := s.seedUser("ana@example.com", domain.RoleIndividual)

	s.Require().NoError(s.store.Delete(s.ctx, user.ID))

	_, err := s.store.Get(s.ctx, user.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.GetByEmail(s.ctx, "ana@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(s.ctx, user.ID), sentinel.ErrNotFound)
}

func (s *UsersSuite) TestListAllKeepsInsertionOrder() {
	first := s.seedUser("first@example.com", domain.RoleIndividual)
	second := s.seedUser("second@example.com", domain.RoleBusiness)
	third := s.seedUser("third@example.com", domain.RoleVerifier)

	listed, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	s.Equal([]string{first.ID, second.ID, third.ID},
		[]string{listed[0].ID, listed[1].ID, listed[2].ID})
}

func (s *UsersSuite) TestReplaceAll() {
	s.seedUser("old@example.com", domain.RoleIndividual)

	replacement, err := models.NewUser("fresh@example.com", "Fresh", domain.RoleAdmin, storeNow)
	s.Require().NoError(err)
	s.Require().NoError(s.store.ReplaceAll(s.ctx, []*models.User{replacement}))

	listed, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal("fresh@example.com", listed[0].Email)

	_, err = s.store.GetByEmail(s.ctx, "old@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

type CredentialsSuite struct {
	suite.Suite
	ctx   context.Context
	store *Credentials
}

func (s *CredentialsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewCredentials()
}

func TestCredentialsSuite(t *testing.T) {
	suite.Run(t, new(CredentialsSuite))
}

func (s *CredentialsSuite) TestRoundTrip() {
	cred := models.NewPendingCredential("user-1", storeNow)
	s.Require().NoError(s.store.Upsert(s.ctx, cred))

	got, err := s.store.Get(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(models.CredentialPending, got.Status)

	got.Assign("CERT-1", "Gold Standard", storeNow.AddDate(1, 0, 0), storeNow)
	s.Require().NoError(s.store.Upsert(s.ctx, got))

	again, err := s.store.Get(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(models.CredentialActive, again.Status)
	s.Equal(storeNow, again.CreatedAt)

	_, err = s.store.Get(s.ctx, "user-2")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CredentialsSuite) TestDelete() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.NewPendingCredential("user-1", storeNow)))
	s.Require().NoError(s.store.Delete(s.ctx, "user-1"))
	s.ErrorIs(s.store.Delete(s.ctx, "user-1"), sentinel.ErrNotFound)

	listed, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Empty(listed)
}

func (s *CredentialsSuite) TestReplaceAll() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.NewPendingCredential("user-1", storeNow)))
	s.Require().NoError(s.store.Upsert(s.ctx, models.NewPendingCredential("user-2", storeNow)))

	s.Require().NoError(s.store.ReplaceAll(s.ctx, []*models.VerifierCredential{
		models.NewPendingCredential("user-3", storeNow),
	}))

	listed, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal("user-3", listed[0].UserID)
}

func TestPersistentUsersSurviveReopen(t *testing.T) {
	ctx := context.Background()
	substrate, err := kv.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = substrate.Close() })

	first, err := NewPersistentUsers(ctx, substrate)
	if err != nil {
		t.Fatal(err)
	}
	user, err := models.NewUser("durable@example.com", "Durable", domain.RoleVerifier, storeNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Upsert(ctx, user); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewPersistentUsers(ctx, substrate)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.GetByEmail(ctx, "durable@example.com")
	if err != nil {
		t.Fatalf("expected user to survive reopen: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("got id %q, want %q", got.ID, user.ID)
	}
}

func TestPersistentCredentialsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	substrate, err := kv.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = substrate.Close() })

	first, err := NewPersistentCredentials(ctx, substrate)
	if err != nil {
		t.Fatal(err)
	}
	cred := models.NewPendingCredential("user-1", storeNow)
	cred.Assign("CERT-9", "Verra", storeNow.AddDate(2, 0, 0), storeNow)
	if err := first.Upsert(ctx, cred); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewPersistentCredentials(ctx, substrate)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("expected credential to survive reopen: %v", err)
	}
	if got.CertificationID != "CERT-9" || got.Status != models.CredentialActive {
		t.Fatalf("unexpected credential after reopen: %+v", got)
	}
}

func TestPersistentUsersStartEmptyOnCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	substrate, err := kv.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = substrate.Close() })

	if err := substrate.Set(ctx, snapshot.NamespaceUsers, []byte("{broken")); err != nil {
		t.Fatal(err)
	}

	store, err := NewPersistentUsers(ctx, substrate)
	if err == nil {
		t.Fatal("expected a corruption error")
	}
	if store == nil {
		t.Fatal("caller must still receive a usable empty store")
	}
	listed, listErr := store.ListAll(ctx)
	if listErr != nil || len(listed) != 0 {
		t.Fatalf("expected empty store, got %d users (err %v)", len(listed), listErr)
	}
}
