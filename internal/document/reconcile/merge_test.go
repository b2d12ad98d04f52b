package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy/internal/document/models"
	"canopy/internal/ledger"
	"canopy/pkg/domain"
)

func localDoc(id, contentID string, status models.Status) *models.Document {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return &models.Document{
		ID:           id,
		ContentID:    contentID,
		Status:       status,
		Source:       models.SourceLocal,
		Uploader:     "farmer@example.com",
		UploaderName: "Ada Farmer",
		UploaderRole: domain.RoleIndividual,
		Filename:     "survey.pdf",
		FileSize:     2048,
		MimeType:     "application/pdf",
		Metadata: models.Metadata{
			ProjectName: "Mangrove Restoration",
			Description: "Coastal replanting south of the delta",
			Location:    "Delta South",
			Quantity:    120,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func remoteRec(id, contentID string, attested bool) *ledger.Record {
	return &ledger.Record{
		ID:          id,
		ContentID:   contentID,
		Owner:       "0xabc",
		ProjectName: "Mangrove Restoration",
		Amount:      120,
		Attested:    attested,
		CreatedAt:   time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
	}
}

func TestMergeBothNil(t *testing.T) {
	assert.Nil(t, Merge(nil, nil))
}

func TestMergeLocalOnly(t *testing.T) {
	local := localDoc("local_1700000000000_abcd1234", "bafybeigdyrzt5", models.StatusPending)

	got := Merge(local, nil)

	require.NotNil(t, got)
	assert.Equal(t, models.SourceLocalOnly, got.Source)
	assert.Equal(t, local.ID, got.ID)
	assert.Equal(t, local.Status, got.Status)

	got.Metadata.ProjectName = "changed"
	assert.Equal(t, "Mangrove Restoration", local.Metadata.ProjectName, "merge must not alias the input")
}

func TestMergeRemoteOnly(t *testing.T) {
	t.Run("fills unknowns for fields the ledger does not store", func(t *testing.T) {
		rec := remoteRec("42", "bafybeigdyrzt5", false)
		rec.ProjectName = ""
		rec.Owner = ""

		got := Merge(nil, rec)

		require.NotNil(t, got)
		assert.Equal(t, "42", got.ID)
		assert.Equal(t, models.SourceRemote, got.Source)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, models.UnknownValue, got.Metadata.ProjectName)
		assert.Equal(t, models.UnknownValue, got.Uploader)
		assert.Equal(t, models.UnknownValue, got.UploaderName)
		assert.True(t, got.RegisteredRemotely)
	})

	t.Run("attested remote record surfaces as attested", func(t *testing.T) {
		got := Merge(nil, remoteRec("42", "bafybeigdyrzt5", true))
		assert.Equal(t, models.StatusAttested, got.Status)
	})

	t.Run("keeps owner and project name when present", func(t *testing.T) {
		got := Merge(nil, remoteRec("42", "bafybeigdyrzt5", false))
		assert.Equal(t, "0xabc", got.Uploader)
		assert.Equal(t, "Mangrove Restoration", got.Metadata.ProjectName)
		assert.EqualValues(t, 120, got.Metadata.Quantity)
	})
}

func TestMergeBothSides(t *testing.T) {
	t.Run("remote identity wins, local metadata survives", func(t *testing.T) {
		local := localDoc("local_1700000000000_abcd1234", "bafybeigdyrzt5", models.StatusPending)
		rec := remoteRec("42", "bafybeigdyrzt5", false)

		got := Merge(local, rec)

		assert.Equal(t, "42", got.ID)
		assert.Equal(t, "0xabc", got.Uploader)
		assert.Equal(t, "Ada Farmer", got.UploaderName)
		assert.Equal(t, "Coastal replanting south of the delta", got.Metadata.Description)
		assert.Equal(t, models.SourceRemote, got.Source)
		assert.True(t, got.RegisteredRemotely)
	})

	t.Run("empty remote id never erases the local one", func(t *testing.T) {
		local := localDoc("local_1700000000000_abcd1234", "bafybeigdyrzt5", models.StatusPending)
		rec := remoteRec("", "bafybeigdyrzt5", false)

		got := Merge(local, rec)

		assert.Equal(t, "local_1700000000000_abcd1234", got.ID)
	})

	t.Run("remote attestation advances a pending document", func(t *testing.T) {
		local := localDoc("42", "bafybeigdyrzt5", models.StatusPending)

		got := Merge(local, remoteRec("42", "bafybeigdyrzt5", true))

		assert.Equal(t, models.StatusAttested, got.Status)
	})

	t.Run("minted locally stays minted when the ledger lags", func(t *testing.T) {
		local := localDoc("42", "bafybeigdyrzt5", models.StatusMinted)
		local.MintingResult = &models.MintingResult{TransactionRef: "0xdeadbeef", Amount: 120}

		got := Merge(local, remoteRec("42", "bafybeigdyrzt5", false))

		assert.Equal(t, models.StatusMinted, got.Status)
		require.NotNil(t, got.MintingResult)
		assert.Equal(t, "0xdeadbeef", got.MintingResult.TransactionRef)
	})

	t.Run("rejected locally stays rejected even if remote attested", func(t *testing.T) {
		local := localDoc("42", "bafybeigdyrzt5", models.StatusRejected)

		got := Merge(local, remoteRec("42", "bafybeigdyrzt5", true))

		assert.Equal(t, models.StatusRejected, got.Status)
	})

	t.Run("remote content id fills an empty local one", func(t *testing.T) {
		local := localDoc("42", "", models.StatusPending)

		got := Merge(local, remoteRec("42", "bafybeigdyrzt5", false))

		assert.Equal(t, "bafybeigdyrzt5", got.ContentID)
	})

	t.Run("local content id is not overwritten", func(t *testing.T) {
		local := localDoc("42", "bafylocal", models.StatusPending)

		got := Merge(local, remoteRec("42", "bafyremote", false))

		assert.Equal(t, "bafylocal", got.ContentID)
	})
}
