// Package events defines document lifecycle notifications. Direct actions
// (upload, attest, mint, reject) and reconciliation-detected changes both
// flow through the same Publisher so downstream consumers see one stream.
package events

import (
	"context"
	"time"

	"canopy/internal/document/models"
)

type Type string

const (
	TypeUploaded Type = "document_uploaded"
	TypeAttested Type = "document_attested"
	TypeMinted   Type = "document_minted"
	TypeRejected Type = "document_rejected"

	// Emitted by the sync poller when a reconciliation pass detects a
	// change that did not originate from a local action.
	TypeAdded          Type = "document_added"
	TypeStatusChanged  Type = "document_status_changed"
	TypeBalanceChanged Type = "credit_balance_changed"
)

// Event is one document lifecycle notification. Fields beyond Type and
// DocumentID are populated when the event kind carries them.
type Event struct {
	Type           Type          `json:"type"`
	DocumentID     string        `json:"documentId"`
	ContentID      string        `json:"contentId,omitempty"`
	Actor          string        `json:"actor,omitempty"`
	Status         models.Status `json:"status,omitempty"`
	PreviousStatus models.Status `json:"previousStatus,omitempty"`
	Uploader       string        `json:"uploader,omitempty"`
	Balance        uint64        `json:"balance,omitempty"`
	PreviousBal    uint64        `json:"previousBalance,omitempty"`
	Outcome        string        `json:"outcome,omitempty"`
	At             time.Time     `json:"at"`
}

// Publisher delivers events to downstream consumers. Delivery is best-effort
// ops telemetry; callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
