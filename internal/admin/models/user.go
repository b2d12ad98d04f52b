// Package models holds the administration domain entities: managed user
// accounts, verifier credentials, and the closed admin permission set.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

// User is an account managed through the administration surface.
type User struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewUser builds a user with a generated id. Email is normalized to lower
// case so uniqueness checks are case-insensitive.
func NewUser(email, name string, role domain.Role, now time.Time) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeValidation, "email is not a valid address")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("role %q is not recognized", role))
	}

	return &User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a copy so store state cannot be mutated through a returned
// pointer.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	return &out
}
