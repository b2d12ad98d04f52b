// Package audit records administrative actions as an append-only trail.
// Every entry names who acted, what they did, and whom it affected; stores
// expose no update or delete.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type classifies audit entries. The set is closed: stores and consumers
// rely on it, so new administrative actions must extend it here.
type Type string

const (
	TypeRoleChange         Type = "role_change"
	TypeUserCreated        Type = "user_created"
	TypeUserDeleted        Type = "user_deleted"
	TypeVerifierAssigned   Type = "verifier_assigned"
	TypeVerifierRemoved    Type = "verifier_removed"
	TypeCredentialsUpdated Type = "credentials_updated"
	TypeBackupCreated      Type = "backup_created"
	TypeDataRestored       Type = "data_restored"
)

// Valid reports whether t is a known entry type.
func (t Type) Valid() bool {
	switch t {
	case TypeRoleChange, TypeUserCreated, TypeUserDeleted,
		TypeVerifierAssigned, TypeVerifierRemoved, TypeCredentialsUpdated,
		TypeBackupCreated, TypeDataRestored:
		return true
	}
	return false
}

// Entry is one recorded administrative action.
type Entry struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	ActorID    string         `json:"actorId"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	TargetID   string         `json:"targetId,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewEntry builds an entry with a fresh id. Details may be nil.
func NewEntry(entryType Type, actorID, actorEmail, targetID string, details map[string]any, now time.Time) Entry {
	return Entry{
		ID:         uuid.New().String(),
		Type:       entryType,
		ActorID:    actorID,
		ActorEmail: actorEmail,
		TargetID:   targetID,
		Details:    details,
		Timestamp:  now,
	}
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Type     Type
	ActorID  string
	TargetID string
	// From and To bound the entry timestamp inclusively.
	From time.Time
	To   time.Time
	// Limit caps the number of entries returned; zero means no cap.
	Limit int
}

// Store persists audit entries. List returns newest first.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
	Count(ctx context.Context) (int, error)
	// ReplaceAll swaps the full trail in one step. It exists for the
	// backup restore path only and must not be exposed past the admin
	// service.
	ReplaceAll(ctx context.Context, entries []Entry) error
}
