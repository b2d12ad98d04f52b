// Package kv provides the durable key-value substrate backing local
// persistence. Record, admin, and audit stores serialize their namespaces
// through pkg/platform/snapshot and store the resulting blobs here under
// disjoint keys; the content store keeps file blobs under its own prefix.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"canopy/pkg/platform/sentinel"
)

// Config holds configuration for the substrate.
type Config struct {
	// Path is the directory for database files. Empty selects in-memory mode,
	// used for tests and for running without CANOPY_DATA_DIR.
	Path string

	// SyncWrites forces fsync on every write. Local persistence is the
	// fallback when the ledger is unreachable, so production keeps this on.
	SyncWrites bool

	// Logger receives the database's internal log output. Nil disables it.
	Logger *slog.Logger
}

// Store wraps the embedded database. Safe for concurrent use.
type Store struct {
	db       *badger.DB
	inMemory bool
}

// Open opens the substrate at cfg.Path, creating the directory if needed.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	inMemory := cfg.Path == ""
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	return &Store{db: db, inMemory: inMemory}, nil
}

// OpenInMemory opens a throwaway in-memory substrate for tests.
func OpenInMemory() (*Store, error) {
	return Open(Config{})
}

// Get returns the value for key, or sentinel.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("key %q: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, nil
}

// Set writes the value for key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// Entry is one key-value result from List.
type Entry struct {
	Key   string
	Value []byte
}

// List returns all entries under prefix in key order.
func (s *Store) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{Key: string(item.Key()), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv list %q: %w", prefix, err)
	}
	return entries, nil
}

// Sync flushes pending writes to disk. No-op in memory mode.
func (s *Store) Sync() error {
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// slogAdapter bridges slog to the database's printf-style logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
