// Package store persists documents in the local cache. The local cache is
// the fast, always-available side of reconciliation; it may lag the ledger
// but must never lose a record the ledger does not have.
package store

import (
	"context"

	"canopy/internal/document/models"
)

// RecordStore is the document storage contract.
//
// Lookups by id fall back to a content-id and embedded-reference scan
// because ledger-assigned ids arrive in whatever shape the ledger chose
// while local fallback ids are strings; callers must not assume a single
// canonical key type.
//
// Execute runs validate-then-mutate as one atomic unit against the current
// stored state: no caller observes another's half-applied mutation.
//
//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks RecordStore
type RecordStore interface {
	// Get returns the document for id, or sentinel.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Document, error)
	// GetByContentID returns the document whose content id matches.
	GetByContentID(ctx context.Context, contentID string) (*models.Document, error)
	// Upsert stores doc keyed by its id, inserting or replacing.
	Upsert(ctx context.Context, doc *models.Document) error
	// Execute atomically loads id, runs validate, and if it passes applies
	// mutate and stores the result. The validate error propagates unchanged.
	Execute(ctx context.Context, id string, validate func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error)
	// ListAll returns every document in insertion order.
	ListAll(ctx context.Context) ([]*models.Document, error)
	// Delete removes id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// ReplaceAll swaps the entire store contents, preserving the given order.
	ReplaceAll(ctx context.Context, docs []*models.Document) error
	// Persist writes the full store through the serialization boundary.
	Persist(ctx context.Context) error
	// Load restores the store from its persisted form. A missing snapshot
	// yields an empty store and no error; a corrupt snapshot resets the
	// store to empty and returns an error wrapping sentinel.ErrCorruptSnapshot.
	Load(ctx context.Context) error
}
