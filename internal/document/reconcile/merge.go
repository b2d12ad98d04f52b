package reconcile

import (
	"canopy/internal/document/models"
	"canopy/internal/ledger"
)

// Merge combines at most one local and one remote view of the same document
// into a single record. It is pure: inputs are never mutated.
//
// The remote side supplies canonical identity and ownership; the local side
// supplies descriptive metadata the ledger never stores. A local terminal
// status (minted or rejected) overrides whatever the remote reports, because
// those states are reached through local-only actions the ledger lags behind.
func Merge(local *models.Document, remote *ledger.Record) *models.Document {
	switch {
	case remote == nil && local == nil:
		return nil
	case remote == nil:
		out := local.Clone()
		out.Source = models.SourceLocalOnly
		return out
	case local == nil:
		return fromRemote(remote)
	}

	out := local.Clone()
	out.Source = models.SourceRemote
	out.RegisteredRemotely = true

	// Canonical identity wins, but never degrade to an empty id.
	if remote.ID != "" {
		out.ID = remote.ID
	}
	if remote.ContentID != "" && out.ContentID == "" {
		out.ContentID = remote.ContentID
	}
	if remote.Owner != "" {
		out.Uploader = remote.Owner
	}

	if !local.Status.Terminal() {
		out.Status = statusFromRemote(remote)
	}
	return out
}

// fromRemote shapes a ledger record the local cache has never seen.
// Descriptive fields the ledger cannot supply default to a sentinel.
func fromRemote(remote *ledger.Record) *models.Document {
	projectName := remote.ProjectName
	if projectName == "" {
		projectName = models.UnknownValue
	}
	uploader := remote.Owner
	if uploader == "" {
		uploader = models.UnknownValue
	}
	return &models.Document{
		ID:                 remote.ID,
		ContentID:          remote.ContentID,
		Status:             statusFromRemote(remote),
		Source:             models.SourceRemote,
		Uploader:           uploader,
		UploaderName:       models.UnknownValue,
		Metadata: models.Metadata{
			ProjectName: projectName,
			Quantity:    int64(remote.Amount),
		},
		RegisteredRemotely: true,
		CreatedAt:          remote.CreatedAt,
		UpdatedAt:          remote.CreatedAt,
	}
}

func statusFromRemote(remote *ledger.Record) models.Status {
	if remote.Attested {
		return models.StatusAttested
	}
	return models.StatusPending
}
