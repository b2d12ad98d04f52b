package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"canopy/internal/admin/models"
	"canopy/internal/audit"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/requestcontext"
)

// GetAuditLogs returns matching audit entries, newest first.
func (s *Service) GetAuditLogs(ctx context.Context, actor requestcontext.Actor, filter audit.Filter) ([]audit.Entry, error) {
	if err := s.authorize(actor, models.PermissionViewAuditLogs); err != nil {
		return nil, err
	}
	entries, err := s.auditLog.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries")
	}
	return entries, nil
}

// Stats summarizes the system for the admin dashboard.
type Stats struct {
	TotalUsers        int            `json:"totalUsers"`
	UsersByRole       map[string]int `json:"usersByRole"`
	ActiveVerifiers   int            `json:"activeVerifiers"`
	TotalCredentials  int            `json:"totalCredentials"`
	AuditEntries      int            `json:"auditEntries"`
	TotalDocuments    int            `json:"totalDocuments"`
	DocumentsByStatus map[string]int `json:"documentsByStatus"`
	GeneratedAt       time.Time      `json:"generatedAt"`
}

// GetSystemStats collects counts from every store concurrently. Each
// goroutine fills a disjoint set of fields, so no extra locking is needed
// beyond the errgroup join.
func (s *Service) GetSystemStats(ctx context.Context, actor requestcontext.Actor) (*Stats, error) {
	if err := s.authorize(actor, models.PermissionViewAuditLogs); err != nil {
		return nil, err
	}

	now := s.clock(ctx)
	stats := &Stats{
		UsersByRole:       make(map[string]int),
		DocumentsByStatus: make(map[string]int),
		GeneratedAt:       now,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		users, err := s.users.ListAll(gctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		stats.TotalUsers = len(users)
		for _, user := range users {
			stats.UsersByRole[string(user.Role)]++
		}
		return nil
	})
	g.Go(func() error {
		creds, err := s.credentials.ListAll(gctx)
		if err != nil {
			return fmt.Errorf("list credentials: %w", err)
		}
		stats.TotalCredentials = len(creds)
		for _, cred := range creds {
			if cred.Validate(now).Valid {
				stats.ActiveVerifiers++
			}
		}
		return nil
	})
	g.Go(func() error {
		count, err := s.auditLog.Count(gctx)
		if err != nil {
			return fmt.Errorf("count audit entries: %w", err)
		}
		stats.AuditEntries = count
		return nil
	})
	g.Go(func() error {
		docs, err := s.documents.ListAll(gctx)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		stats.TotalDocuments = len(docs)
		for _, doc := range docs {
			stats.DocumentsByStatus[string(doc.Status)]++
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect system stats")
	}
	return stats, nil
}
