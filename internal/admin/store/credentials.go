package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"canopy/internal/admin/models"
	"canopy/internal/platform/kv"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/platform/snapshot"
)

// Credentials keeps verifier credentials keyed by user id, with an
// insertion-order slice for deterministic listings and backups.
type Credentials struct {
	mu     sync.RWMutex
	byUser map[string]*models.VerifierCredential
	order  []string
	kv     *kv.Store // nil means persistence is disabled
}

// NewCredentials creates a volatile credential store.
func NewCredentials() *Credentials {
	return &Credentials{byUser: make(map[string]*models.VerifierCredential)}
}

// NewPersistentCredentials creates a store backed by the substrate's
// verifierCredentials namespace, loading whatever a previous run left there.
// A corrupt snapshot starts the store empty and reports the corruption.
func NewPersistentCredentials(ctx context.Context, substrate *kv.Store) (*Credentials, error) {
	s := NewCredentials()
	s.kv = substrate

	data, err := substrate.Get(ctx, snapshot.NamespaceCredentials)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s, nil
		}
		return nil, err
	}

	pairs, err := snapshot.DecodeBytes(data)
	if err != nil {
		return s, fmt.Errorf("load verifier credentials: %w", err)
	}
	loaded := make([]*models.VerifierCredential, 0, len(pairs))
	for i := range pairs {
		var cred models.VerifierCredential
		if err := pairs.Decode(i, &cred); err != nil {
			return s, fmt.Errorf("load verifier credentials: %w", err)
		}
		loaded = append(loaded, &cred)
	}
	for _, cred := range loaded {
		s.putLocked(cred)
	}
	return s, nil
}

func (s *Credentials) Get(ctx context.Context, userID string) (*models.VerifierCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.byUser[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cred.Clone(), nil
}

func (s *Credentials) Upsert(ctx context.Context, cred *models.VerifierCredential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(cred.Clone())
	return s.persistLocked(ctx)
}

func (s *Credentials) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUser[userID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byUser, userID)
	for i, existing := range s.order {
		if existing == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return s.persistLocked(ctx)
}

// ListAll returns every credential in insertion order.
func (s *Credentials) ListAll(ctx context.Context) ([]*models.VerifierCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VerifierCredential, 0, len(s.order))
	for _, userID := range s.order {
		out = append(out, s.byUser[userID].Clone())
	}
	return out, nil
}

// ReplaceAll swaps the entire store contents. Restore path only.
func (s *Credentials) ReplaceAll(ctx context.Context, creds []*models.VerifierCredential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser = make(map[string]*models.VerifierCredential, len(creds))
	s.order = s.order[:0]
	for _, cred := range creds {
		s.putLocked(cred.Clone())
	}
	return s.persistLocked(ctx)
}

func (s *Credentials) putLocked(cred *models.VerifierCredential) {
	if _, ok := s.byUser[cred.UserID]; !ok {
		s.order = append(s.order, cred.UserID)
	}
	s.byUser[cred.UserID] = cred
}

func (s *Credentials) persistLocked(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	pairs := snapshot.Pairs{}
	var err error
	for _, userID := range s.order {
		if pairs, err = pairs.Append(userID, s.byUser[userID]); err != nil {
			return fmt.Errorf("encode verifier credentials: %w", err)
		}
	}
	data, err := snapshot.Encode(pairs)
	if err != nil {
		return fmt.Errorf("encode verifier credentials: %w", err)
	}
	return s.kv.Set(ctx, snapshot.NamespaceCredentials, data)
}
