// Package snapshot defines the persisted snapshot format: an ordered list of
// [key, value] pairs per namespace, serialized as JSON.
//
// Insertion order is part of the contract. Stores rebuild their secondary
// indexes and insertion-order bookkeeping from pair order, so a round-trip
// through this codec must preserve it exactly; plain JSON objects would not.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"canopy/pkg/platform/sentinel"
)

// Namespace names used as both snapshot section keys and durable storage keys.
// The set is closed; backup restore validates incoming sections against it.
const (
	NamespaceDocuments   = "documents"
	NamespaceUsers       = "users"
	NamespaceAuditLogs   = "auditLogs"
	NamespaceCredentials = "verifierCredentials"
)

// Pair is one [key, value] element. It marshals as a two-element JSON array so
// order survives serialization.
type Pair struct {
	Key   string
	Value json.RawMessage
}

// MarshalJSON encodes the pair as ["key", value].
func (p Pair) MarshalJSON() ([]byte, error) {
	key, err := json.Marshal(p.Key)
	if err != nil {
		return nil, err
	}
	value := p.Value
	if value == nil {
		value = json.RawMessage("null")
	}
	return json.Marshal([2]json.RawMessage{key, value})
}

// UnmarshalJSON decodes a ["key", value] element.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: pair is not an array: %w", sentinel.ErrCorruptSnapshot, err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("%w: pair has %d elements, want 2", sentinel.ErrCorruptSnapshot, len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Key); err != nil {
		return fmt.Errorf("%w: pair key is not a string: %w", sentinel.ErrCorruptSnapshot, err)
	}
	p.Value = raw[1]
	return nil
}

// Pairs is an ordered namespace section.
type Pairs []Pair

// Append marshals v and appends it under key, preserving insertion order.
func (ps Pairs) Append(key string, v any) (Pairs, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return ps, fmt.Errorf("marshal %q: %w", key, err)
	}
	return append(ps, Pair{Key: key, Value: value}), nil
}

// Decode unmarshals the pair at index i into v.
func (ps Pairs) Decode(i int, v any) error {
	if i < 0 || i >= len(ps) {
		return fmt.Errorf("%w: index %d out of range", sentinel.ErrCorruptSnapshot, i)
	}
	if err := json.Unmarshal(ps[i].Value, v); err != nil {
		return fmt.Errorf("%w: value for %q: %w", sentinel.ErrCorruptSnapshot, ps[i].Key, err)
	}
	return nil
}

// Encode serializes an ordered namespace section to its stored form.
func Encode(ps Pairs) ([]byte, error) {
	if ps == nil {
		ps = Pairs{}
	}
	return json.Marshal(ps)
}

// DecodeBytes parses a stored namespace section back into ordered pairs. Any
// structural problem reports sentinel.ErrCorruptSnapshot; nothing partial is
// returned.
func DecodeBytes(data []byte) (Pairs, error) {
	if len(data) == 0 {
		return Pairs{}, nil
	}
	var ps Pairs
	if err := json.Unmarshal(data, &ps); err != nil {
		if errors.Is(err, sentinel.ErrCorruptSnapshot) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", sentinel.ErrCorruptSnapshot, err)
	}
	return ps, nil
}

// BackupVersion is the envelope version this build reads and writes.
const BackupVersion = "1.0.0"

// Backup is the full-system snapshot envelope: every namespace as an ordered
// section, wrapped with a version and the capture time.
type Backup struct {
	Version             string    `json:"version"`
	Timestamp           time.Time `json:"timestamp"`
	Users               Pairs     `json:"users"`
	Documents           Pairs     `json:"documents"`
	AuditLogs           Pairs     `json:"auditLogs"`
	VerifierCredentials Pairs     `json:"verifierCredentials"`
}

// ParseBackup decodes a backup envelope. A missing version is reported before
// any section is inspected, so callers can fail a restore without touching
// state.
func ParseBackup(data []byte) (*Backup, error) {
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		if errors.Is(err, sentinel.ErrCorruptSnapshot) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", sentinel.ErrCorruptSnapshot, err)
	}
	if b.Version == "" {
		return nil, fmt.Errorf("%w: backup version missing", sentinel.ErrCorruptSnapshot)
	}
	return &b, nil
}
