// Package ledger defines the client contract for the external system of
// record. The ledger is authoritative for registered documents but slow and
// sometimes unreachable; callers wrap operations in retry policies keyed on
// the error classes reported here.
package ledger

import (
	"context"
	"fmt"
	"time"

	"canopy/internal/attestation"
	"canopy/pkg/platform/retry"
)

// Record is a ledger-side document entry. IDs are normalized to strings at
// the decode boundary because the ledger emits numeric ids for records it
// assigned itself.
type Record struct {
	ID          string    `json:"id"`
	ContentID   string    `json:"contentId"`
	Owner       string    `json:"owner"`
	ProjectName string    `json:"projectName"`
	Amount      uint64    `json:"amount"`
	Attested    bool      `json:"attested"`
	TxRef       string    `json:"txRef"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RegisterRequest asks the ledger to create a new record for uploaded content.
type RegisterRequest struct {
	ContentID   string `json:"contentId"`
	ProjectName string `json:"projectName"`
	Owner       string `json:"owner"`
	Amount      uint64 `json:"amount"`
}

// AttestRequest submits a verifier's signed attestation for a registered record.
type AttestRequest struct {
	RecordID  string              `json:"recordId"`
	Payload   attestation.Payload `json:"payload"`
	Signature string              `json:"signature"`
	Verifier  string              `json:"verifier"`
}

// Client talks to the external ledger.
//
//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Client
type Client interface {
	// IsConfigured reports whether a ledger endpoint is wired at all. When
	// false, every other method fails and callers should degrade to
	// local-only behavior without retrying.
	IsConfigured() bool
	// RegisterRecord creates a ledger record and returns it with the
	// ledger-assigned id.
	RegisterRecord(ctx context.Context, req RegisterRequest) (*Record, error)
	// GetRecord fetches one record by ledger id.
	GetRecord(ctx context.Context, id string) (*Record, error)
	// GetAllRecords fetches every record visible to this deployment.
	GetAllRecords(ctx context.Context) ([]Record, error)
	// AttestRecord marks a record attested on the ledger.
	AttestRecord(ctx context.Context, req AttestRequest) (*Record, error)
	// Close releases client resources.
	Close() error
}

// Error is a classified ledger failure. Class drives retry decisions; the
// underlying error is preserved for logging and errors.Is checks.
type Error struct {
	Op         string
	Class      retry.Class
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("ledger %s: %s: %v", e.Op, e.Message, e.Underlying)
	}
	return fmt.Sprintf("ledger %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// RetryClass implements retry.Classified.
func (e *Error) RetryClass() retry.Class {
	return e.Class
}

// NewError builds a classified ledger error.
func NewError(op string, class retry.Class, message string, underlying error) *Error {
	return &Error{Op: op, Class: class, Message: message, Underlying: underlying}
}
