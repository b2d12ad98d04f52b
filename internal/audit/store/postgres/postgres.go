// Package postgres provides the durable audit store over database/sql.
// The server opens the connection with the pgx stdlib driver; this package
// only assumes PostgreSQL placeholder syntax.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"canopy/internal/audit"
)

// Schema is the audit_logs DDL. Every statement is idempotent so applying
// it against an already-migrated database is safe.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id          UUID PRIMARY KEY,
	entry_type  TEXT        NOT NULL,
	actor_id    TEXT        NOT NULL,
	actor_email TEXT        NOT NULL DEFAULT '',
	target_id   TEXT        NOT NULL DEFAULT '',
	details     JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_logs_entry_type ON audit_logs (entry_type);
`

// Store implements audit.Store against the audit_logs table.
type Store struct {
	db *sql.DB
}

var _ audit.Store = (*Store)(nil)

// New creates a PostgreSQL audit store over an open handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies the table and index definitions.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// Append inserts one entry. Re-inserting an id is a no-op, so replayed
// appends stay idempotent.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	details, err := marshalDetails(entry.Details)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (id, entry_type, actor_id, actor_email, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Type),
		entry.ActorID,
		entry.ActorEmail,
		entry.TargetID,
		details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns matching entries newest first.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	// Zero filter values collapse to always-true predicates, which keeps one
	// static query for every filter combination. LIMIT NULLIF(..., 0) turns
	// the zero limit into "no cap".
	query := `
		SELECT id, entry_type, actor_id, actor_email, target_id, details, created_at
		FROM audit_logs
		WHERE ($1 = '' OR entry_type = $1)
		  AND ($2 = '' OR actor_id = $2)
		  AND ($3 = '' OR target_id = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		ORDER BY created_at DESC
		LIMIT NULLIF($6, 0)
	`
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	rows, err := s.db.QueryContext(ctx, query,
		string(filter.Type), filter.ActorID, filter.TargetID, from, to, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the total number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

// ReplaceAll swaps the full trail inside one transaction.
func (s *Store) ReplaceAll(ctx context.Context, entries []audit.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_logs`); err != nil {
		return fmt.Errorf("clear audit entries: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, entry_type, actor_id, actor_email, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, entry := range entries {
		details, err := marshalDetails(entry.Details)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			entry.ID,
			string(entry.Type),
			entry.ActorID,
			entry.ActorEmail,
			entry.TargetID,
			details,
			entry.Timestamp,
		); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal audit details: %w", err)
	}
	return data, nil
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			entry     audit.Entry
			entryType string
			details   []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entryType,
			&entry.ActorID,
			&entry.ActorEmail,
			&entry.TargetID,
			&details,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Type = audit.Type(entryType)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
