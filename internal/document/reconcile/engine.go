// Package reconcile produces one consistent document view from two
// disagreeing sources: the local cache (fast, possibly stale) and the
// external ledger (authoritative, possibly unreachable).
package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"canopy/internal/document/models"
	"canopy/internal/document/store"
	"canopy/internal/ledger"
	"canopy/pkg/domain"
	"canopy/pkg/platform/retry"
	"canopy/pkg/requestcontext"
)

// listPolicy governs retries for the remote record listing. The classes
// match upload registration: anything that can heal on its own.
var listPolicy = retry.Policy{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	Retryable:   []retry.Class{retry.ClassNetwork, retry.ClassTimeout, retry.ClassStoreUnavailable},
}

// Filter narrows a reconciled document list. Zero values match everything.
type Filter struct {
	Status models.Status
	Role   domain.Role
	// Search matches case-insensitively over project name, description,
	// and uploader fields.
	Search string
}

// Snapshot is one full reconciliation result, diffable across poll ticks.
type Snapshot struct {
	Documents []*models.Document
	// CreditBalance is the total amount minted across all documents.
	CreditBalance uint64
	TakenAt       time.Time
}

// Engine merges local and remote document records.
type Engine struct {
	store   store.RecordStore
	client  ledger.Client
	retries *retry.Executor
	logger  *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRetryExecutor swaps the retry executor used for remote fetches.
func WithRetryExecutor(exec *retry.Executor) Option {
	return func(e *Engine) {
		if exec != nil {
			e.retries = exec
		}
	}
}

func New(recordStore store.RecordStore, client ledger.Client, opts ...Option) *Engine {
	e := &Engine{
		store:   recordStore,
		client:  client,
		retries: retry.NewExecutor(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Documents serves the interactive read path: local records win outright
// when present, keeping latency flat while the ledger lags. Only an empty
// cache falls through to the remote.
func (e *Engine) Documents(ctx context.Context, filter Filter) ([]*models.Document, error) {
	local, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	if len(local) > 0 {
		for _, doc := range local {
			doc.Source = models.SourceLocal
		}
		return finalize(local, filter), nil
	}

	if !e.client.IsConfigured() {
		e.logger.DebugContext(ctx, "ledger not configured, serving empty document list")
		return nil, nil
	}

	remote, err := e.fetchRemote(ctx)
	if err != nil {
		return nil, err
	}
	merged := make([]*models.Document, 0, len(remote))
	for i := range remote {
		merged = append(merged, Merge(nil, &remote[i]))
	}
	return finalize(merged, filter), nil
}

// Snapshot performs one full reconciliation pass: every remote record is
// joined against the local cache by id or content id, local-only records
// are appended, and the merged set is ordered and de-duplicated. Pollers
// diff consecutive snapshots to detect change.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	local, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var remote []ledger.Record
	if e.client.IsConfigured() {
		remote, err = e.fetchRemote(ctx)
		if err != nil {
			return nil, err
		}
	}

	merged := e.join(local, remote)
	merged = finalize(merged, Filter{})

	var balance uint64
	for _, doc := range merged {
		if doc.Status == models.StatusMinted && doc.MintingResult != nil {
			balance += doc.MintingResult.Amount
		}
	}

	return &Snapshot{
		Documents:     merged,
		CreditBalance: balance,
		TakenAt:       requestcontext.Now(ctx),
	}, nil
}

// join matches remote records to local ones and tags what is left over.
func (e *Engine) join(local []*models.Document, remote []ledger.Record) []*models.Document {
	matched := make(map[string]bool, len(local))
	byID := make(map[string]*models.Document, len(local))
	byContent := make(map[string]*models.Document, len(local))
	for _, doc := range local {
		byID[doc.ID] = doc
		if doc.ContentID != "" {
			byContent[doc.ContentID] = doc
		}
	}

	out := make([]*models.Document, 0, len(local)+len(remote))
	for i := range remote {
		rec := &remote[i]
		counterpart := byID[rec.ID]
		if counterpart == nil && rec.ContentID != "" {
			counterpart = byContent[rec.ContentID]
		}
		if counterpart != nil {
			matched[counterpart.ID] = true
		}
		out = append(out, Merge(counterpart, rec))
	}

	// Local records the ledger does not know about are legitimate, for
	// example when registration failed; they must never be dropped.
	for _, doc := range local {
		if !matched[doc.ID] {
			out = append(out, Merge(doc, nil))
		}
	}
	return out
}

func (e *Engine) fetchRemote(ctx context.Context) ([]ledger.Record, error) {
	var records []ledger.Record
	err := e.retries.Do(ctx, "ledger_list", listPolicy, func(ctx context.Context) error {
		fetched, err := e.client.GetAllRecords(ctx)
		if err != nil {
			return err
		}
		records = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// finalize applies filters, orders newest-first with a stable sort, and
// drops later duplicates of the same content id.
func finalize(docs []*models.Document, filter Filter) []*models.Document {
	filtered := docs[:0:0]
	for _, doc := range docs {
		if matches(doc, filter) {
			filtered = append(filtered, doc)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	seen := make(map[string]bool, len(filtered))
	out := filtered[:0]
	for _, doc := range filtered {
		if doc.ContentID != "" {
			if seen[doc.ContentID] {
				continue
			}
			seen[doc.ContentID] = true
		}
		out = append(out, doc)
	}
	return out
}

func matches(doc *models.Document, filter Filter) bool {
	if filter.Status != "" && doc.Status != filter.Status {
		return false
	}
	if filter.Role != "" && doc.UploaderRole != filter.Role {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		haystacks := []string{
			doc.Metadata.ProjectName,
			doc.Metadata.Description,
			doc.Uploader,
			doc.UploaderName,
		}
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), needle) {
				return true
			}
		}
		return false
	}
	return true
}
