package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"canopy/internal/document/models"
	"canopy/internal/platform/kv"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/platform/snapshot"
)

// InMemory keeps documents in process memory with optional durability
// through a key-value substrate. All reads return deep copies.
type InMemory struct {
	mu        sync.RWMutex
	docs      map[string]*models.Document
	byContent map[string]string // content id -> document id
	order     []string          // insertion order of document ids
	kv        *kv.Store         // nil means persistence is disabled
}

var _ RecordStore = (*InMemory)(nil)

// NewInMemory creates a volatile store. Persist and Load are no-ops.
func NewInMemory() *InMemory {
	return &InMemory{
		docs:      make(map[string]*models.Document),
		byContent: make(map[string]string),
	}
}

// NewPersistent creates a store that snapshots into the given substrate
// under the documents namespace.
func NewPersistent(substrate *kv.Store) *InMemory {
	s := NewInMemory()
	s.kv = substrate
	return s
}

func (s *InMemory) Get(ctx context.Context, id string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (s *InMemory) GetByContentID(ctx context.Context, contentID string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docID, ok := s.byContent[contentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.docs[docID].Clone(), nil
}

func (s *InMemory) Upsert(ctx context.Context, doc *models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil || doc.ID == "" {
		return sentinel.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(doc.Clone())
	return nil
}

func (s *InMemory) Execute(ctx context.Context, id string, validate func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	working := stored.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.put(working)
	return working.Clone(), nil
}

func (s *InMemory) ListAll(ctx context.Context) ([]*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Document, 0, len(s.order))
	for _, id := range s.order {
		if doc, ok := s.docs[id]; ok {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil
	}
	delete(s.docs, id)
	delete(s.byContent, doc.ContentID)
	for i, ordered := range s.order {
		if ordered == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemory) ReplaceAll(ctx context.Context, docs []*models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for _, doc := range docs {
		if doc == nil || doc.ID == "" {
			continue
		}
		s.put(doc.Clone())
	}
	return nil
}

// Persist serializes the store as ordered key/value pairs into the substrate.
func (s *InMemory) Persist(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	s.mu.RLock()
	pairs := snapshot.Pairs{}
	var err error
	for _, id := range s.order {
		if doc, ok := s.docs[id]; ok {
			if pairs, err = pairs.Append(id, doc); err != nil {
				break
			}
		}
	}
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}

	data, err := snapshot.Encode(pairs)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	return s.kv.Set(ctx, snapshot.NamespaceDocuments, data)
}

// Load restores from the substrate. Corrupt snapshots leave the store empty
// so no partial state survives; the error reports the corruption.
func (s *InMemory) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	data, err := s.kv.Get(ctx, snapshot.NamespaceDocuments)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.mu.Lock()
			s.reset()
			s.mu.Unlock()
			return nil
		}
		return err
	}

	pairs, err := snapshot.DecodeBytes(data)
	if err != nil {
		s.mu.Lock()
		s.reset()
		s.mu.Unlock()
		return fmt.Errorf("load documents: %w", err)
	}

	docs := make([]*models.Document, 0, len(pairs))
	for i := range pairs {
		var doc models.Document
		if err := pairs.Decode(i, &doc); err != nil {
			s.mu.Lock()
			s.reset()
			s.mu.Unlock()
			return fmt.Errorf("load documents: %w", err)
		}
		docs = append(docs, &doc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for _, doc := range docs {
		s.put(doc)
	}
	return nil
}

// locate resolves an id to a stored document, falling back to a trimmed id,
// then the content index, then embedded remote references. Callers hold at
// least a read lock.
func (s *InMemory) locate(id string) (*models.Document, error) {
	if doc, ok := s.docs[id]; ok {
		return doc, nil
	}
	norm := strings.TrimSpace(id)
	if doc, ok := s.docs[norm]; ok {
		return doc, nil
	}
	if docID, ok := s.byContent[norm]; ok {
		return s.docs[docID], nil
	}
	for _, orderedID := range s.order {
		doc := s.docs[orderedID]
		if doc.RemoteTxRef != "" && doc.RemoteTxRef == norm {
			return doc, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// put stores doc and maintains both indices. Callers hold the write lock.
func (s *InMemory) put(doc *models.Document) {
	if existing, ok := s.docs[doc.ID]; ok {
		if existing.ContentID != doc.ContentID {
			delete(s.byContent, existing.ContentID)
		}
	} else {
		s.order = append(s.order, doc.ID)
	}
	s.docs[doc.ID] = doc
	if doc.ContentID != "" {
		s.byContent[doc.ContentID] = doc.ID
	}
}

// reset drops all state. Callers hold the write lock.
func (s *InMemory) reset() {
	s.docs = make(map[string]*models.Document)
	s.byContent = make(map[string]string)
	s.order = nil
}
