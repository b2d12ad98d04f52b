package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy/pkg/platform/sentinel"
)

type fixtureRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPairsRoundTrip(t *testing.T) {
	var ps Pairs
	var err error
	ps, err = ps.Append("doc-2", fixtureRecord{Name: "mangrove", Count: 7})
	require.NoError(t, err)
	ps, err = ps.Append("doc-1", fixtureRecord{Name: "solar", Count: 3})
	require.NoError(t, err)

	data, err := Encode(ps)
	require.NoError(t, err)

	decoded, err := DecodeBytes(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	// Insertion order survives: doc-2 was appended first and stays first even
	// though doc-1 sorts before it lexically.
	assert.Equal(t, "doc-2", decoded[0].Key)
	assert.Equal(t, "doc-1", decoded[1].Key)

	var rec fixtureRecord
	require.NoError(t, decoded.Decode(0, &rec))
	assert.Equal(t, fixtureRecord{Name: "mangrove", Count: 7}, rec)
}

func TestPairWireShape(t *testing.T) {
	ps, err := Pairs{}.Append("k1", fixtureRecord{Name: "n", Count: 1})
	require.NoError(t, err)

	data, err := Encode(ps)
	require.NoError(t, err)
	assert.JSONEq(t, `[["k1",{"name":"n","count":1}]]`, string(data))
}

func TestDecodeBytesCorruptInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not an array", `{"k":"v"}`},
		{"pair too short", `[["only-key"]]`},
		{"pair too long", `[["k","v","extra"]]`},
		{"non-string key", `[[42,{"name":"n"}]]`},
		{"truncated", `[["k",`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, sentinel.ErrCorruptSnapshot)
		})
	}
}

func TestDecodeBytesEmpty(t *testing.T) {
	ps, err := DecodeBytes(nil)
	require.NoError(t, err)
	assert.Empty(t, ps)

	ps, err = DecodeBytes([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestDecodeOutOfRange(t *testing.T) {
	ps, err := Pairs{}.Append("k", fixtureRecord{})
	require.NoError(t, err)

	var rec fixtureRecord
	err = ps.Decode(1, &rec)
	assert.ErrorIs(t, err, sentinel.ErrCorruptSnapshot)
}

func TestBackupRoundTrip(t *testing.T) {
	users, err := Pairs{}.Append("user-1", fixtureRecord{Name: "ada", Count: 1})
	require.NoError(t, err)

	original := Backup{
		Version:   BackupVersion,
		Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Users:     users,
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	parsed, err := ParseBackup(data)
	require.NoError(t, err)
	assert.Equal(t, BackupVersion, parsed.Version)
	assert.True(t, parsed.Timestamp.Equal(original.Timestamp))
	require.Len(t, parsed.Users, 1)
	assert.Equal(t, "user-1", parsed.Users[0].Key)
	assert.Empty(t, parsed.Documents)
}

func TestParseBackupRejectsBadEnvelopes(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{broken`},
		{"version missing", `{"timestamp":"2026-05-01T12:00:00Z","users":[]}`},
		{"corrupt section", `{"version":"1.0.0","users":[["only-key"]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBackup([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, sentinel.ErrCorruptSnapshot)
		})
	}
}
