package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

const (
	// MaxNameLength bounds the project name.
	MaxNameLength = 100
	// MaxDescriptionLength bounds the free-text description.
	MaxDescriptionLength = 500
	// MaxLocationLength bounds the location string.
	MaxLocationLength = 100
	// MaxQuantity bounds the estimated credit quantity.
	MaxQuantity = 1_000_000

	// UnknownValue fills descriptive fields the ledger cannot supply.
	UnknownValue = "Unknown"

	localIDPrefix = "local_"
)

// Metadata is the uploader-supplied project description.
type Metadata struct {
	ProjectName string `json:"projectName"`
	ProjectType string `json:"projectType,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Quantity    int64  `json:"quantity"`
}

// Validate enforces the metadata bounds.
func (m Metadata) Validate() error {
	if m.ProjectName == "" {
		return dErrors.New(dErrors.CodeValidation, "project_name is required")
	}
	if len(m.ProjectName) > MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("project_name must be %d characters or less", MaxNameLength))
	}
	if len(m.Description) > MaxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if len(m.Location) > MaxLocationLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("location must be %d characters or less", MaxLocationLength))
	}
	if m.Quantity < 0 {
		return dErrors.New(dErrors.CodeValidation, "quantity must not be negative")
	}
	if m.Quantity > MaxQuantity {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("quantity must not exceed %d", MaxQuantity))
	}
	return nil
}

// Attestation is a verifier's recorded assertion over a document.
type Attestation struct {
	Verifier          string    `json:"verifier"`
	VerifierName      string    `json:"verifierName,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	Signature         string    `json:"signature"`
	ExternalProjectID string    `json:"externalProjectId"`
	ExternalSerial    string    `json:"externalSerial"`
	Amount            uint64    `json:"amount"`
	Nonce             uint64    `json:"nonce"`
	LedgerConfirmed   bool      `json:"ledgerConfirmed"`
}

// MintingResult records a completed credit mint.
type MintingResult struct {
	TransactionRef string    `json:"transactionRef"`
	Timestamp      time.Time `json:"timestamp"`
	Amount         uint64    `json:"amount"`
	Recipient      string    `json:"recipient"`
	TokenRef       string    `json:"tokenRef,omitempty"`
}

// Document is the aggregate root for one uploaded artifact.
//
// Invariants:
//   - exactly one of: pending (no attestation, no minting result),
//     attested (attestation set), minted (attestation and minting result
//     set), rejected (terminal, no further mutation)
//   - ContentID is an alternate lookup key and never changes
//   - ID is ledger-assigned when registration succeeded, otherwise a
//     locally generated fallback id
//   - UpdatedAt is bumped on every mutation
type Document struct {
	ID                 string         `json:"id"`
	ContentID          string         `json:"contentId"`
	Status             Status         `json:"status"`
	Source             Source         `json:"source,omitempty"`
	Uploader           string         `json:"uploader"`
	UploaderName       string         `json:"uploaderName,omitempty"`
	UploaderRole       domain.Role    `json:"uploaderRole"`
	Filename           string         `json:"filename,omitempty"`
	FileSize           int64          `json:"fileSize,omitempty"`
	MimeType           string         `json:"mimeType,omitempty"`
	Metadata           Metadata       `json:"metadata"`
	Attestation        *Attestation   `json:"attestation,omitempty"`
	MintingResult      *MintingResult `json:"mintingResult,omitempty"`
	RegisteredRemotely bool           `json:"registeredRemotely"`
	RemoteTxRef        string         `json:"remoteTransactionRef,omitempty"`
	RejectionReason    string         `json:"rejectionReason,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// New builds a pending document. The id may be ledger-assigned or a local
// fallback; the caller decides which after attempting registration.
func New(docID, contentID, uploader, uploaderName string, role domain.Role, meta Metadata, now time.Time) (*Document, error) {
	if docID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document id cannot be empty")
	}
	if contentID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "content id cannot be empty")
	}
	if uploader == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "uploader cannot be empty")
	}
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "uploader role is not recognized")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &Document{
		ID:           docID,
		ContentID:    contentID,
		Status:       StatusPending,
		Uploader:     uploader,
		UploaderName: uploaderName,
		UploaderRole: role,
		Metadata:     meta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewLocalID generates a fallback id for documents the ledger never
// registered. The timestamp prefix keeps ids roughly sortable.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", localIDPrefix, now.UnixMilli(), uuid.NewString()[:8])
}

// IsLocalID reports whether id is a locally generated fallback.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// Clone returns a deep copy so callers can tag or mutate a document
// without writing through to shared store state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	if d.Attestation != nil {
		att := *d.Attestation
		out.Attestation = &att
	}
	if d.MintingResult != nil {
		mr := *d.MintingResult
		out.MintingResult = &mr
	}
	return &out
}

// CanAttest checks the attestation transition.
// Use with ApplyAttestation in Execute callbacks.
func (d *Document) CanAttest() error {
	if d.Status == StatusPending {
		return nil
	}
	return dErrors.New(dErrors.CodeInvariantViolation,
		fmt.Sprintf("document cannot be attested from status %q", d.Status))
}

// ApplyAttestation records the attestation and moves to attested.
// Call CanAttest first to validate the transition.
func (d *Document) ApplyAttestation(att Attestation, now time.Time) {
	d.Attestation = &att
	d.Status = StatusAttested
	d.UpdatedAt = now
}

// CanMint checks the minting transition. Callers that tolerate out-of-order
// mint events inspect this error and proceed anyway; the state machine
// itself only permits minting from attested.
func (d *Document) CanMint() error {
	if d.Status == StatusAttested {
		return nil
	}
	return dErrors.New(dErrors.CodeInvariantViolation,
		fmt.Sprintf("document cannot be minted from status %q", d.Status))
}

// ApplyMinting records the minting result and moves to minted.
func (d *Document) ApplyMinting(result MintingResult, now time.Time) {
	d.MintingResult = &result
	d.Status = StatusMinted
	d.UpdatedAt = now
}

// CanReject checks the rejection transition.
// Use with ApplyRejection in Execute callbacks.
func (d *Document) CanReject() error {
	switch d.Status {
	case StatusPending, StatusAttested:
		return nil
	case StatusRejected:
		return dErrors.New(dErrors.CodeInvariantViolation, "document is already rejected")
	}
	return dErrors.New(dErrors.CodeInvariantViolation,
		fmt.Sprintf("document cannot be rejected from status %q", d.Status))
}

// ApplyRejection moves the document to its terminal rejected state.
// Call CanReject first to validate the transition.
func (d *Document) ApplyRejection(reason string, now time.Time) {
	d.Status = StatusRejected
	d.RejectionReason = reason
	d.UpdatedAt = now
}

// MintEligibility reports whether the document qualifies for minting and,
// when it does not, a human-readable reason.
func (d *Document) MintEligibility() (bool, string) {
	if d.Status != StatusAttested {
		return false, fmt.Sprintf("document status is %q, expected %q", d.Status, StatusAttested)
	}
	if d.Attestation == nil || d.Attestation.Signature == "" {
		return false, "attestation is missing a signature"
	}
	return true, ""
}
