// Package memory provides the in-process audit store, optionally durable
// through a key-value substrate.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"canopy/internal/audit"
	"canopy/internal/platform/kv"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/platform/snapshot"
)

// Store keeps entries in append order behind a mutex. When a substrate is
// present every mutation is written through, so a restart loses nothing.
type Store struct {
	mu      sync.RWMutex
	entries []audit.Entry
	kv      *kv.Store // nil means persistence is disabled
}

var _ audit.Store = (*Store)(nil)

// New creates a volatile audit store.
func New() *Store {
	return &Store{}
}

// NewPersistent creates a store backed by the substrate's auditLogs
// namespace, loading whatever a previous run left there. A corrupt snapshot
// starts the store empty and reports the corruption.
func NewPersistent(ctx context.Context, substrate *kv.Store) (*Store, error) {
	s := New()
	s.kv = substrate

	data, err := substrate.Get(ctx, snapshot.NamespaceAuditLogs)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s, nil
		}
		return nil, err
	}

	pairs, err := snapshot.DecodeBytes(data)
	if err != nil {
		return s, fmt.Errorf("load audit log: %w", err)
	}
	entries := make([]audit.Entry, 0, len(pairs))
	for i := range pairs {
		var entry audit.Entry
		if err := pairs.Decode(i, &entry); err != nil {
			return s, fmt.Errorf("load audit log: %w", err)
		}
		entries = append(entries, entry)
	}
	s.entries = entries
	return s, nil
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.persistLocked(ctx)
}

// List returns matching entries newest first.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]audit.Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if filter.ActorID != "" && entry.ActorID != filter.ActorID {
			continue
		}
		if filter.TargetID != "" && entry.TargetID != filter.TargetID {
			continue
		}
		if !filter.From.IsZero() && entry.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && entry.Timestamp.After(filter.To) {
			continue
		}
		matched = append(matched, entry)
		if filter.Limit > 0 && len(matched) == filter.Limit {
			break
		}
	}
	return matched, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Store) ReplaceAll(ctx context.Context, entries []audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]audit.Entry{}, entries...)
	return s.persistLocked(ctx)
}

// persistLocked writes the full trail through to the substrate. Callers hold
// the write lock.
func (s *Store) persistLocked(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	pairs := snapshot.Pairs{}
	var err error
	for _, entry := range s.entries {
		if pairs, err = pairs.Append(entry.ID, entry); err != nil {
			return fmt.Errorf("encode audit log: %w", err)
		}
	}
	data, err := snapshot.Encode(pairs)
	if err != nil {
		return fmt.Errorf("encode audit log: %w", err)
	}
	return s.kv.Set(ctx, snapshot.NamespaceAuditLogs, data)
}
