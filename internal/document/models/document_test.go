package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

func validMetadata() Metadata {
	return Metadata{
		ProjectName: "Mangrove Restoration",
		ProjectType: "reforestation",
		Description: "Replanting mangroves along the delta",
		Location:    "Sundarbans",
		Quantity:    1200,
	}
}

func newPendingDocument(t *testing.T) *Document {
	t.Helper()
	doc, err := New("rec-1", "bafytest", "0xabc", "Alice", domain.RoleBusiness, validMetadata(), time.Now())
	require.NoError(t, err)
	return doc
}

func TestMetadataValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Metadata)
		wantMsg string
	}{
		{"missing project name", func(m *Metadata) { m.ProjectName = "" }, "project_name is required"},
		{"project name too long", func(m *Metadata) { m.ProjectName = strings.Repeat("n", 101) }, "project_name must be 100 characters or less"},
		{"description too long", func(m *Metadata) { m.Description = strings.Repeat("d", 501) }, "description must be 500 characters or less"},
		{"location too long", func(m *Metadata) { m.Location = strings.Repeat("l", 101) }, "location must be 100 characters or less"},
		{"negative quantity", func(m *Metadata) { m.Quantity = -1 }, "quantity must not be negative"},
		{"quantity above cap", func(m *Metadata) { m.Quantity = 1_000_001 }, "quantity must not exceed 1000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := validMetadata()
			tt.mutate(&meta)
			err := meta.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	t.Run("boundary values pass", func(t *testing.T) {
		meta := validMetadata()
		meta.ProjectName = strings.Repeat("n", 100)
		meta.Description = strings.Repeat("d", 500)
		meta.Location = strings.Repeat("l", 100)
		meta.Quantity = 1_000_000
		require.NoError(t, meta.Validate())

		meta.Quantity = 0
		require.NoError(t, meta.Validate())
	})
}

func TestNew(t *testing.T) {
	now := time.Now()

	t.Run("valid input yields pending document", func(t *testing.T) {
		doc, err := New("rec-1", "bafytest", "0xabc", "Alice", domain.RoleIndividual, validMetadata(), now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, doc.Status)
		assert.Nil(t, doc.Attestation)
		assert.Nil(t, doc.MintingResult)
		assert.Equal(t, now, doc.CreatedAt)
		assert.Equal(t, now, doc.UpdatedAt)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		_, err := New("", "bafytest", "0xabc", "", domain.RoleIndividual, validMetadata(), now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("empty content id rejected", func(t *testing.T) {
		_, err := New("rec-1", "", "0xabc", "", domain.RoleIndividual, validMetadata(), now)
		require.Error(t, err)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		_, err := New("rec-1", "bafytest", "0xabc", "", domain.Role("root"), validMetadata(), now)
		require.Error(t, err)
	})

	t.Run("metadata violation surfaces as validation error", func(t *testing.T) {
		meta := validMetadata()
		meta.Quantity = -1
		_, err := New("rec-1", "bafytest", "0xabc", "", domain.RoleIndividual, meta, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusAttested, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusMinted, false},
		{StatusAttested, StatusMinted, true},
		{StatusAttested, StatusRejected, true},
		{StatusAttested, StatusPending, false},
		{StatusMinted, StatusRejected, false},
		{StatusMinted, StatusAttested, false},
		{StatusRejected, StatusPending, false},
		{StatusRejected, StatusAttested, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	t.Run("terminal states", func(t *testing.T) {
		assert.False(t, StatusPending.Terminal())
		assert.False(t, StatusAttested.Terminal())
		assert.True(t, StatusMinted.Terminal())
		assert.True(t, StatusRejected.Terminal())
	})
}

func TestAttestationLifecycle(t *testing.T) {
	now := time.Now()

	t.Run("pending document can be attested", func(t *testing.T) {
		doc := newPendingDocument(t)
		require.NoError(t, doc.CanAttest())

		later := now.Add(time.Minute)
		doc.ApplyAttestation(Attestation{
			Verifier:  "0xverifier",
			Signature: "0xsig",
			Amount:    500,
			Timestamp: later,
		}, later)

		assert.Equal(t, StatusAttested, doc.Status)
		require.NotNil(t, doc.Attestation)
		assert.Equal(t, "0xsig", doc.Attestation.Signature)
		assert.Equal(t, later, doc.UpdatedAt)
	})

	t.Run("attested document cannot be attested again", func(t *testing.T) {
		doc := newPendingDocument(t)
		doc.ApplyAttestation(Attestation{Signature: "0xsig"}, now)

		err := doc.CanAttest()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		assert.Contains(t, err.Error(), "attested")
	})

	t.Run("rejected document cannot be attested", func(t *testing.T) {
		doc := newPendingDocument(t)
		doc.ApplyRejection("document is illegible", now)
		require.Error(t, doc.CanAttest())
	})
}

func TestMintingLifecycle(t *testing.T) {
	now := time.Now()

	t.Run("attested document can be minted", func(t *testing.T) {
		doc := newPendingDocument(t)
		doc.ApplyAttestation(Attestation{Signature: "0xsig", Amount: 500}, now)
		require.NoError(t, doc.CanMint())

		doc.ApplyMinting(MintingResult{
			TransactionRef: "0xtx",
			Amount:         500,
			Recipient:      "0xabc",
			Timestamp:      now,
		}, now)

		assert.Equal(t, StatusMinted, doc.Status)
		require.NotNil(t, doc.MintingResult)
		assert.Equal(t, "0xtx", doc.MintingResult.TransactionRef)
	})

	t.Run("pending document fails mint check", func(t *testing.T) {
		doc := newPendingDocument(t)
		err := doc.CanMint()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestRejectionLifecycle(t *testing.T) {
	now := time.Now()

	t.Run("pending document can be rejected", func(t *testing.T) {
		doc := newPendingDocument(t)
		require.NoError(t, doc.CanReject())
		doc.ApplyRejection("document is illegible", now)
		assert.Equal(t, StatusRejected, doc.Status)
		assert.Equal(t, "document is illegible", doc.RejectionReason)
	})

	t.Run("attested document can be rejected", func(t *testing.T) {
		doc := newPendingDocument(t)
		doc.ApplyAttestation(Attestation{Signature: "0xsig"}, now)
		require.NoError(t, doc.CanReject())
	})

	t.Run("minted document cannot be rejected", func(t *testing.T) {
		doc := newPendingDocument(t)
		doc.ApplyAttestation(Attestation{Signature: "0xsig"}, now)
		doc.ApplyMinting(MintingResult{TransactionRef: "0xtx"}, now)

		err := doc.CanReject()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "minted")
	})

	t.Run("double rejection fails", func(t *testing.T) {
		doc := newPendingDocument(t)
		doc.ApplyRejection("document is illegible", now)
		err := doc.CanReject()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already rejected")
	})
}

func TestMintEligibility(t *testing.T) {
	now := time.Now()

	t.Run("attested with signature is eligible", func(t *testing.T) {
		doc := newPendingDocument(t)
		doc.ApplyAttestation(Attestation{Signature: "0xsig"}, now)

		eligible, reason := doc.MintEligibility()
		assert.True(t, eligible)
		assert.Empty(t, reason)
	})

	t.Run("pending is not eligible", func(t *testing.T) {
		doc := newPendingDocument(t)
		eligible, reason := doc.MintEligibility()
		assert.False(t, eligible)
		assert.Contains(t, reason, "pending")
	})

	t.Run("empty signature is not eligible", func(t *testing.T) {
		doc := newPendingDocument(t)
		doc.ApplyAttestation(Attestation{Signature: ""}, now)

		eligible, reason := doc.MintEligibility()
		assert.False(t, eligible)
		assert.Contains(t, reason, "signature")
	})
}

func TestLocalIDs(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("local id carries prefix and timestamp", func(t *testing.T) {
		id := NewLocalID(now)
		assert.True(t, strings.HasPrefix(id, "local_1700000000000_"))
		assert.True(t, IsLocalID(id))
	})

	t.Run("local ids are unique", func(t *testing.T) {
		assert.NotEqual(t, NewLocalID(now), NewLocalID(now))
	})

	t.Run("ledger ids are not local", func(t *testing.T) {
		assert.False(t, IsLocalID("rec-17"))
		assert.False(t, IsLocalID("42"))
	})
}
