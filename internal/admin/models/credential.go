package models

import "time"

// CredentialStatus tracks whether a verifier credential has been populated.
type CredentialStatus string

const (
	// CredentialPending marks a credential created on promotion, before an
	// admin has assigned certification details.
	CredentialPending CredentialStatus = "pending"
	// CredentialActive marks a credential with assigned certification details.
	CredentialActive CredentialStatus = "active"
)

// VerifierCredential records the certification backing a verifier account.
// One exists per verifier: created empty and pending on promotion, populated
// by explicit assignment, deleted on demotion.
type VerifierCredential struct {
	UserID           string           `json:"userId"`
	Status           CredentialStatus `json:"status"`
	CertificationID  string           `json:"certificationId,omitempty"`
	IssuingAuthority string           `json:"issuingAuthority,omitempty"`
	ValidUntil       time.Time        `json:"validUntil"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// NewPendingCredential creates the empty credential attached to a fresh
// verifier. Certification details arrive later via assignment.
func NewPendingCredential(userID string, now time.Time) *VerifierCredential {
	return &VerifierCredential{
		UserID:    userID,
		Status:    CredentialPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Assign populates the certification details and activates the credential.
// CreatedAt is preserved so re-assignment keeps the original issue history.
func (c *VerifierCredential) Assign(certificationID, issuingAuthority string, validUntil, now time.Time) {
	c.CertificationID = certificationID
	c.IssuingAuthority = issuingAuthority
	c.ValidUntil = validUntil
	c.Status = CredentialActive
	c.UpdatedAt = now
}

// Validation is the outcome of checking a credential at a point in time.
type Validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validate reports whether the credential authorizes verification work at
// the given instant. Validity ends strictly after ValidUntil passes.
func (c *VerifierCredential) Validate(now time.Time) Validation {
	if c.Status == CredentialPending {
		return Validation{Reason: "Credentials not yet assigned"}
	}
	if now.After(c.ValidUntil) {
		return Validation{Reason: "Credentials expired"}
	}
	return Validation{Valid: true}
}

// Clone returns a copy so store state cannot be mutated through a returned
// pointer.
func (c *VerifierCredential) Clone() *VerifierCredential {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
