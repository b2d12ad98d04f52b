package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestNewUser(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		user, err := NewUser("  Rivera@Example.COM ", " Sam Rivera ", domain.RoleBusiness, testNow)
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "rivera@example.com", user.Email, "email must be trimmed and lowercased")
		assert.Equal(t, "Sam Rivera", user.Name)
		assert.Equal(t, domain.RoleBusiness, user.Role)
		assert.Equal(t, testNow, user.CreatedAt)
		assert.Equal(t, testNow, user.UpdatedAt)
	})

	tests := []struct {
		name    string
		email   string
		user    string
		role    domain.Role
		wantMsg string
	}{
		{"missing email", "", "Sam", domain.RoleIndividual, "email is required"},
		{"malformed email", "not-an-address", "Sam", domain.RoleIndividual, "email is not a valid address"},
		{"missing name", "sam@example.com", "  ", domain.RoleIndividual, "name is required"},
		{"unknown role", "sam@example.com", "Sam", domain.Role("root"), `role "root" is not recognized`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUser(tt.email, tt.user, tt.role, testNow)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestCredentialValidate(t *testing.T) {
	t.Run("pending credential is not yet valid", func(t *testing.T) {
		cred := NewPendingCredential("user-1", testNow)
		result := cred.Validate(testNow)
		assert.False(t, result.Valid)
		assert.Equal(t, "Credentials not yet assigned", result.Reason)
	})

	t.Run("active credential within validity window", func(t *testing.T) {
		cred := NewPendingCredential("user-1", testNow)
		cred.Assign("CERT-42", "Forest Stewardship Council", testNow.AddDate(1, 0, 0), testNow)

		result := cred.Validate(testNow.AddDate(0, 6, 0))
		assert.True(t, result.Valid)
		assert.Empty(t, result.Reason)
	})

	t.Run("expires strictly after valid_until", func(t *testing.T) {
		validUntil := testNow.AddDate(1, 0, 0)
		cred := NewPendingCredential("user-1", testNow)
		cred.Assign("CERT-42", "Forest Stewardship Council", validUntil, testNow)

		atBoundary := cred.Validate(validUntil)
		assert.True(t, atBoundary.Valid, "credential is still valid at the boundary instant")

		past := cred.Validate(validUntil.Add(time.Second))
		assert.False(t, past.Valid)
		assert.Equal(t, "Credentials expired", past.Reason)
	})
}

func TestAssignPreservesCreatedAt(t *testing.T) {
	cred := NewPendingCredential("user-1", testNow)
	later := testNow.Add(48 * time.Hour)
	cred.Assign("CERT-42", "Forest Stewardship Council", testNow.AddDate(1, 0, 0), later)

	assert.Equal(t, CredentialActive, cred.Status)
	assert.Equal(t, testNow, cred.CreatedAt)
	assert.Equal(t, later, cred.UpdatedAt)
}

func TestRoleHasPermission(t *testing.T) {
	allPerms := []Permission{
		PermissionManageUsers,
		PermissionChangeUserRoles,
		PermissionViewAuditLogs,
		PermissionManageCredentials,
		PermissionBackupRestoreData,
	}

	for _, perm := range allPerms {
		assert.True(t, RoleHasPermission(domain.RoleAdmin, perm), "admin must hold %s", perm)
	}
	for _, role := range []domain.Role{domain.RoleIndividual, domain.RoleBusiness, domain.RoleVerifier} {
		for _, perm := range allPerms {
			assert.False(t, RoleHasPermission(role, perm), "%s must not hold %s", role, perm)
		}
	}
}

func TestUserClone(t *testing.T) {
	user, err := NewUser("sam@example.com", "Sam", domain.RoleVerifier, testNow)
	require.NoError(t, err)

	clone := user.Clone()
	clone.Role = domain.RoleAdmin
	assert.Equal(t, domain.RoleVerifier, user.Role, "mutating the clone must not touch the original")
}
