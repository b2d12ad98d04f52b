// Package domain holds identity vocabulary shared across bounded contexts.
package domain

import dErrors "canopy/pkg/domain-errors"

// Role is a user's system role. The set is closed: every uploader, verifier,
// and administrator carries exactly one of these.
type Role string

const (
	RoleIndividual Role = "individual"
	RoleBusiness   Role = "business"
	RoleVerifier   Role = "verifier"
	RoleAdmin      Role = "admin"
)

// Roles lists every valid role in display order.
func Roles() []Role {
	return []Role{RoleIndividual, RoleBusiness, RoleVerifier, RoleAdmin}
}

func (r Role) Valid() bool {
	switch r {
	case RoleIndividual, RoleBusiness, RoleVerifier, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole validates a caller-supplied role string.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role must be one of: individual, business, verifier, admin")
	}
	return r, nil
}
