// Package store provides the in-process stores for managed users and
// verifier credentials, optionally durable through the key-value substrate.
// Absent records are reported as sentinel.ErrNotFound; the admin service
// maps those to coded errors at its boundary.
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

// Users keeps accounts in a map with an insertion-order slice so listings
// and backups stay deterministic. Email lookups go through a secondary
// index instead of scanning.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
	order   []string
	kv      *kv.Store // nil means persistence is disabled
}

// NewUsers creates a volatile user store.
func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

// NewPersistentUsers creates a store backed by the substrate's users
// namespace, loading whatever a previous run left there. A corrupt snapshot
// starts the store empty and reports the corruption.
func NewPersistentUsers(ctx context.Context, substrate *kv.Store) (*Users, error) {
	s := NewUsers()
	s.kv = substrate

	data, err := substrate.Get(ctx, snapshot.NamespaceUsers)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s, nil
		}
		return nil, err
	}

	pairs, err := snapshot.DecodeBytes(data)
	if err != nil {
		return s, fmt.Errorf("load users: %w", err)
	}
	loaded := make([]*models.User, 0, len(pairs))
	for i := range pairs {
		var user models.User
		if err := pairs.Decode(i, &user); err != nil {
			return s, fmt.Errorf("load users: %w", err)
		}
		loaded = append(loaded, &user)
	}
	for _, user := range loaded {
		s.putLocked(user)
	}
	return s, nil
}

func (s *Users) Get(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return user.Clone(), nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Users) Upsert(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(user.Clone())
	return s.persistLocked(ctx)
}

func (s *Users) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, user.Email)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return s.persistLocked(ctx)
}

// ListAll returns every user in insertion order.
func (s *Users) ListAll(ctx context.Context) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

// ReplaceAll swaps the entire store contents. Restore path only.
func (s *Users) ReplaceAll(ctx context.Context, users []*models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*models.User, len(users))
	s.byEmail = make(map[string]string, len(users))
	s.order = s.order[:0]
	for _, user := range users {
		s.putLocked(user.Clone())
	}
	return s.persistLocked(ctx)
}

// putLocked installs a record and maintains both indexes. Callers hold the
// write lock and pass an owned copy.
func (s *Users) putLocked(user *models.User) {
	if existing, ok := s.byID[user.ID]; ok {
		if existing.Email != user.Email {
			delete(s.byEmail, existing.Email)
		}
	} else {
		s.order = append(s.order, user.ID)
	}
	s.byID[user.ID] = user
	s.byEmail[user.Email] = user.ID
}

// persistLocked writes the full namespace through to the substrate.
// Callers hold the write lock.
func (s *Users) persistLocked(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	pairs := snapshot.Pairs{}
	var err error
	for _, id := range s.order {
		if pairs, err = pairs.Append(id, s.byID[id]); err != nil {
			return fmt.Errorf("encode users: %w", err)
		}
	}
	data, err := snapshot.Encode(pairs)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	return s.kv.Set(ctx, snapshot.NamespaceUsers, data)
}
