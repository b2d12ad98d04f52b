package handler

import (
	"encoding/json"
	"strings"
	"time"

	"canopy/internal/admin/service"
	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

// CreateUserRequest is the HTTP request body for POST /v1/admin/users.
// Email, name, and role rules are enforced by the service; the handler only
// normalizes shape.
type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Validate normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateUserRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Role = strings.TrimSpace(r.Role)
	return nil
}

// Input converts the request to the service input.
func (r *CreateUserRequest) Input() service.CreateUserInput {
	return service.CreateUserInput{
		Email: r.Email,
		Name:  r.Name,
		Role:  domain.Role(r.Role),
	}
}

// ChangeRoleRequest is the HTTP request body for PUT /v1/admin/users/{id}/role.
type ChangeRoleRequest struct {
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

// Validate normalizes the request.
func (r *ChangeRoleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Role = strings.TrimSpace(r.Role)
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

// AssignCredentialsRequest is the HTTP request body for
// PUT /v1/admin/users/{id}/credentials.
type AssignCredentialsRequest struct {
	CertificationID  string    `json:"certificationId"`
	IssuingAuthority string    `json:"issuingAuthority"`
	ValidUntil       time.Time `json:"validUntil"`
}

// Validate normalizes the request.
func (r *AssignCredentialsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.CertificationID = strings.TrimSpace(r.CertificationID)
	r.IssuingAuthority = strings.TrimSpace(r.IssuingAuthority)
	return nil
}

// Input converts the request to the service input.
func (r *AssignCredentialsRequest) Input() service.CredentialInput {
	return service.CredentialInput{
		CertificationID:  r.CertificationID,
		IssuingAuthority: r.IssuingAuthority,
		ValidUntil:       r.ValidUntil,
	}
}

// RestoreRequest is the HTTP request body for POST /v1/admin/restore: the
// backup envelope plus the namespaces to replace.
type RestoreRequest struct {
	Options service.RestoreOptions `json:"options"`
	Backup  json.RawMessage        `json:"backup"`
}

// Validate checks the backup payload is present. Section selection and
// envelope version rules are enforced by the service.
func (r *RestoreRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Backup) == 0 {
		return dErrors.New(dErrors.CodeValidation, "backup payload is required")
	}
	return nil
}
