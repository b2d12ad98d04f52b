// Package admin holds the steps that exercise account administration:
// user management, verifier credentials, audit queries, and backups.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	PUT(path string, body any) error
	DELETE(path string) error
	Saved(key string) (string, error)
}

// RegisterSteps registers the administration steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &adminSteps{tc: tc}

	ctx.Step(`^I create a user with role "([^"]*)"$`, steps.createUser)
	ctx.Step(`^I fetch the saved user$`, steps.fetchSavedUser)
	ctx.Step(`^I delete the saved user$`, steps.deleteSavedUser)
	ctx.Step(`^I change the saved user's role to "([^"]*)" because "([^"]*)"$`, steps.changeSavedUserRole)
	ctx.Step(`^I assign the saved user credentials "([^"]*)" issued by "([^"]*)"$`, steps.assignCredentials)
	ctx.Step(`^I remove the saved user's credentials$`, steps.removeCredentials)
	ctx.Step(`^I query audit logs of type "([^"]*)"$`, steps.queryAuditLogsByType)
	ctx.Step(`^I fetch system stats$`, steps.fetchStats)
	ctx.Step(`^I create a system backup$`, steps.createBackup)
}

type adminSteps struct {
	tc TestContext
}

// createUser provisions an account with a run-unique address so reruns
// against a long-lived server never collide on email.
func (s *adminSteps) createUser(ctx context.Context, role string) error {
	return s.tc.POST("/v1/admin/users", map[string]string{
		"email": fmt.Sprintf("e2e-%s-%d@example.com", role, time.Now().UnixNano()),
		"name":  "E2E " + role,
		"role":  role,
	})
}

func (s *adminSteps) fetchSavedUser(ctx context.Context) error {
	id, err := s.tc.Saved("userID")
	if err != nil {
		return err
	}
	return s.tc.GET("/v1/admin/users/" + id)
}

func (s *adminSteps) deleteSavedUser(ctx context.Context) error {
	id, err := s.tc.Saved("userID")
	if err != nil {
		return err
	}
	return s.tc.DELETE("/v1/admin/users/" + id)
}

func (s *adminSteps) changeSavedUserRole(ctx context.Context, role, reason string) error {
	id, err := s.tc.Saved("userID")
	if err != nil {
		return err
	}
	return s.tc.PUT("/v1/admin/users/"+id+"/role", map[string]string{
		"role":   role,
		"reason": reason,
	})
}

func (s *adminSteps) assignCredentials(ctx context.Context, certificationID, issuer string) error {
	id, err := s.tc.Saved("userID")
	if err != nil {
		return err
	}
	return s.tc.PUT("/v1/admin/users/"+id+"/credentials", map[string]any{
		"certificationId":  certificationID,
		"issuingAuthority": issuer,
		"validUntil":       time.Now().AddDate(1, 0, 0).Format(time.RFC3339),
	})
}

func (s *adminSteps) removeCredentials(ctx context.Context) error {
	id, err := s.tc.Saved("userID")
	if err != nil {
		return err
	}
	return s.tc.DELETE("/v1/admin/users/" + id + "/credentials")
}

func (s *adminSteps) queryAuditLogsByType(ctx context.Context, entryType string) error {
	return s.tc.GET("/v1/admin/audit-logs?type=" + entryType)
}

func (s *adminSteps) fetchStats(ctx context.Context) error {
	return s.tc.GET("/v1/admin/stats")
}

func (s *adminSteps) createBackup(ctx context.Context) error {
	return s.tc.POST("/v1/admin/backup", nil)
}
