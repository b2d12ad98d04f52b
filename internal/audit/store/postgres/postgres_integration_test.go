//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"canopy/internal/audit"
	"canopy/internal/audit/store/postgres"
	"canopy/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.pg = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "audit_logs"))
}

func makeEntry(entryType audit.Type, actorID string, minute int) audit.Entry {
	return audit.NewEntry(entryType, actorID, actorID+"@example.com", "user-9",
		map[string]any{"from": "individual", "to": "verifier"},
		time.Date(2026, 5, 1, 12, minute, 0, 0, time.UTC))
}

func (s *PostgresStoreSuite) TestAppendAndList() {
	ctx := context.Background()

	first := makeEntry(audit.TypeUserCreated, "admin-1", 0)
	second := makeEntry(audit.TypeRoleChange, "admin-1", 5)
	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, second))

	listed, err := s.store.List(ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal(second.ID, listed[0].ID, "newest entry must come first")
	s.Equal(audit.TypeRoleChange, listed[0].Type)
	s.Equal("verifier", listed[0].Details["to"])
	s.True(listed[0].Timestamp.Equal(second.Timestamp))
}

func (s *PostgresStoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()

	entry := makeEntry(audit.TypeBackupCreated, "admin-1", 0)
	s.Require().NoError(s.store.Append(ctx, entry))
	s.Require().NoError(s.store.Append(ctx, entry))

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestFilters() {
	ctx := context.Background()

	s.Require().NoError(s.store.Append(ctx, makeEntry(audit.TypeUserCreated, "admin-1", 0)))
	s.Require().NoError(s.store.Append(ctx, makeEntry(audit.TypeRoleChange, "admin-1", 1)))
	s.Require().NoError(s.store.Append(ctx, makeEntry(audit.TypeRoleChange, "admin-2", 2)))

	byType, err := s.store.List(ctx, audit.Filter{Type: audit.TypeRoleChange})
	s.Require().NoError(err)
	s.Len(byType, 2)

	byActor, err := s.store.List(ctx, audit.Filter{ActorID: "admin-2"})
	s.Require().NoError(err)
	s.Require().Len(byActor, 1)
	s.Equal("admin-2", byActor[0].ActorID)

	limited, err := s.store.List(ctx, audit.Filter{Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(limited, 1)
	s.Equal("admin-2", limited[0].ActorID, "limit must keep the newest entry")

	windowed, err := s.store.List(ctx, audit.Filter{
		From: time.Date(2026, 5, 1, 12, 1, 0, 0, time.UTC),
		To:   time.Date(2026, 5, 1, 12, 1, 0, 0, time.UTC),
	})
	s.Require().NoError(err)
	s.Require().Len(windowed, 1, "bounds are inclusive")
	s.Equal(audit.TypeRoleChange, windowed[0].Type)

	byTarget, err := s.store.List(ctx, audit.Filter{TargetID: "user-9"})
	s.Require().NoError(err)
	s.Len(byTarget, 3)
}

func (s *PostgresStoreSuite) TestReplaceAll() {
	ctx := context.Background()

	s.Require().NoError(s.store.Append(ctx, makeEntry(audit.TypeUserCreated, "admin-1", 0)))
	s.Require().NoError(s.store.Append(ctx, makeEntry(audit.TypeRoleChange, "admin-1", 1)))

	restored := []audit.Entry{makeEntry(audit.TypeDataRestored, "admin-2", 30)}
	s.Require().NoError(s.store.ReplaceAll(ctx, restored))

	listed, err := s.store.List(ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(audit.TypeDataRestored, listed[0].Type)
}
