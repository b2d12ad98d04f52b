// Package content implements the content-addressed store collaborator.
// Bytes go in, a deterministic content id comes out; storing the same bytes
// twice yields the same id. Ids are hex sha-256 digests, which satisfy the
// bare-digest content reference shape accepted elsewhere.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"canopy/internal/platform/kv"
)

const keyPrefix = "content/"

// Store persists document bytes under their content id.
//
//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store
type Store interface {
	// Put stores data and returns its content id. Idempotent.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the bytes for a content id, or sentinel.ErrNotFound.
	Get(ctx context.Context, contentID string) ([]byte, error)
}

// KVStore stores content in the durable key-value substrate.
type KVStore struct {
	kv *kv.Store
}

var _ Store = (*KVStore)(nil)

func NewKVStore(store *kv.Store) *KVStore {
	return &KVStore{kv: store}
}

func (s *KVStore) Put(ctx context.Context, data []byte) (string, error) {
	digest := sha256.Sum256(data)
	contentID := hex.EncodeToString(digest[:])
	if err := s.kv.Set(ctx, keyPrefix+contentID, data); err != nil {
		return "", fmt.Errorf("store content: %w", err)
	}
	return contentID, nil
}

func (s *KVStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	return s.kv.Get(ctx, keyPrefix+contentID)
}
