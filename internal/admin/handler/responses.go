package handler

import (
	"canopy/internal/admin/models"
	"canopy/internal/audit"
)

// UserListResponse is the HTTP response body for GET /v1/admin/users.
type UserListResponse struct {
	Users []*models.User `json:"users"`
	Count int            `json:"count"`
}

// AuditLogResponse is the HTTP response body for GET /v1/admin/audit-logs.
type AuditLogResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

// RestoreResponse acknowledges a completed restore.
type RestoreResponse struct {
	Restored bool `json:"restored"`
}
