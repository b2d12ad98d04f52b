package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"canopy/internal/document/models"
	"canopy/pkg/platform/sentinel"
)

const (
	redisDocPrefix     = "document:"
	redisContentPrefix = "document:content:"
	redisOrderKey      = "documents:order"
)

// Redis stores documents in Redis. Execute uses WATCH for optimistic
// concurrency: concurrent writers to the same id surface redis.TxFailedErr
// and the caller retries.
type Redis struct {
	client *redis.Client
}

var _ RecordStore = (*Redis)(nil)

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func docKey(id string) string {
	return redisDocPrefix + id
}

func contentKey(cid string) string {
	return redisContentPrefix + cid
}

func (s *Redis) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.fetch(ctx, id)
	if err == nil {
		return doc, nil
	}
	if err != sentinel.ErrNotFound {
		return nil, err
	}

	norm := strings.TrimSpace(id)
	if norm != id {
		if doc, err := s.fetch(ctx, norm); err == nil {
			return doc, nil
		}
	}
	if doc, err := s.GetByContentID(ctx, norm); err == nil {
		return doc, nil
	}

	// Last resort: scan for embedded remote references.
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, doc := range all {
		if doc.RemoteTxRef != "" && doc.RemoteTxRef == norm {
			return doc, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Redis) fetch(ctx context.Context, id string) (*models.Document, error) {
	raw, err := s.client.Get(ctx, docKey(id)).Bytes()
	if err == redis.Nil {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document %q: %w", id, err)
	}
	return &doc, nil
}

func (s *Redis) GetByContentID(ctx context.Context, contentID string) (*models.Document, error) {
	id, err := s.client.Get(ctx, contentKey(contentID)).Result()
	if err == redis.Nil {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get content index: %w", err)
	}
	return s.fetch(ctx, id)
}

func (s *Redis) Upsert(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return sentinel.ErrInvalidState
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	existed, err := s.client.Exists(ctx, docKey(doc.ID)).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(doc.ID), raw, 0)
		if doc.ContentID != "" {
			pipe.Set(ctx, contentKey(doc.ContentID), doc.ID, 0)
		}
		if existed == 0 {
			pipe.RPush(ctx, redisOrderKey, doc.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	return nil
}

func (s *Redis) Execute(ctx context.Context, id string, validate func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error) {
	var result *models.Document

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, docKey(id)).Bytes()
		if err == redis.Nil {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}

		var doc models.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode document %q: %w", id, err)
		}
		if err := validate(&doc); err != nil {
			return err
		}
		mutate(&doc)

		encoded, err := json.Marshal(&doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey(id), encoded, 0)
			if doc.ContentID != "" {
				pipe.Set(ctx, contentKey(doc.ContentID), doc.ID, 0)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = &doc
		return nil
	}, docKey(id))

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Redis) ListAll(ctx context.Context) ([]*models.Document, error) {
	ids, err := s.client.LRange(ctx, redisOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis order range: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(id)
	}
	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make([]*models.Document, 0, len(raws))
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue // id still in order list but document deleted
		}
		var doc models.Document
		if err := json.Unmarshal([]byte(str), &doc); err != nil {
			return nil, fmt.Errorf("decode document %q: %w", ids[i], err)
		}
		out = append(out, &doc)
	}
	return out, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	doc, err := s.fetch(ctx, id)
	if err == sentinel.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(id))
		if doc.ContentID != "" {
			pipe.Del(ctx, contentKey(doc.ContentID))
		}
		pipe.LRem(ctx, redisOrderKey, 0, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (s *Redis) ReplaceAll(ctx context.Context, docs []*models.Document) error {
	existing, err := s.ListAll(ctx)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, old := range existing {
			pipe.Del(ctx, docKey(old.ID))
			if old.ContentID != "" {
				pipe.Del(ctx, contentKey(old.ContentID))
			}
		}
		pipe.Del(ctx, redisOrderKey)

		for _, doc := range docs {
			if doc == nil || doc.ID == "" {
				continue
			}
			raw, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			pipe.Set(ctx, docKey(doc.ID), raw, 0)
			if doc.ContentID != "" {
				pipe.Set(ctx, contentKey(doc.ContentID), doc.ID, 0)
			}
			pipe.RPush(ctx, redisOrderKey, doc.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace all: %w", err)
	}
	return nil
}

// Persist is a no-op: Redis owns durability for this implementation.
func (s *Redis) Persist(_ context.Context) error {
	return nil
}

// Load is a no-op: state lives in Redis already.
func (s *Redis) Load(_ context.Context) error {
	return nil
}
