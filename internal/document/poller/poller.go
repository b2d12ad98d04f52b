// Package poller periodically reconciles the document view and notifies
// subscribers of changes. The ticker only runs while someone is listening:
// the first subscriber starts it, the last unsubscribe stops it.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"canopy/internal/document/events"
	"canopy/internal/document/metrics"
	"canopy/internal/document/models"
	"canopy/internal/document/reconcile"
)

// DefaultInterval is the reconciliation cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Snapshotter produces full reconciliation snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*reconcile.Snapshot, error)
}

// Listener receives change events. Listeners run on the poll goroutine;
// panics are recovered and logged so one bad listener cannot stop the loop.
type Listener func(event events.Event)

// Poller drives periodic reconciliation passes and diffs their snapshots.
type Poller struct {
	source   Snapshotter
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
	running   bool
	closed    bool
	stopCh    chan struct{}

	// runMu serializes passes; a tick that cannot take it is skipped.
	runMu sync.Mutex
	last  *reconcile.Snapshot
}

type Option func(*Poller)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// WithInterval overrides the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func New(source Snapshotter, opts ...Option) (*Poller, error) {
	if source == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}
	p := &Poller{
		source:    source,
		interval:  DefaultInterval,
		logger:    slog.Default(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Subscribe registers a listener and returns its unsubscribe function.
// The first subscriber starts the poll loop; removing the last one stops it.
// The unsubscribe function is safe to call more than once.
func (p *Poller) Subscribe(l Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return func() {}
	}

	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	if !p.running {
		p.running = true
		p.stopCh = make(chan struct{})
		go p.loop(p.stopCh)
		p.logger.Debug("document poller started", "interval", p.interval.String())
	}

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.listeners[id]; !ok {
			return
		}
		delete(p.listeners, id)
		if len(p.listeners) == 0 && p.running {
			p.stopLocked()
		}
	}
}

// Close stops the loop regardless of remaining subscribers.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.running {
		p.stopLocked()
	}
	p.listeners = make(map[int]Listener)
}

func (p *Poller) stopLocked() {
	close(p.stopCh)
	p.running = false
	p.logger.Debug("document poller stopped")
}

func (p *Poller) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Passes run off the loop goroutine. A tick that
			// arrives while one is in flight is dropped, not queued.
			go p.tick()
		}
	}
}

func (p *Poller) tick() {
	if !p.runMu.TryLock() {
		if p.metrics != nil {
			p.metrics.IncrementPollSkip()
		}
		p.logger.Debug("poll tick skipped, previous pass still running")
		return
	}
	defer p.runMu.Unlock()
	p.runOnce(context.Background())
}

// runOnce performs one reconciliation pass and emits diff events. The caller
// must hold runMu.
func (p *Poller) runOnce(ctx context.Context) {
	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncrementPollFailure()
		}
		p.logger.WarnContext(ctx, "reconciliation pass failed", "error", err)
		return
	}

	previous := p.last
	p.last = snap
	if p.metrics != nil {
		p.metrics.IncrementPollRun()
	}

	// The first snapshot is the baseline; nothing to diff against.
	if previous == nil {
		return
	}
	for _, event := range diff(previous, snap) {
		p.emit(event)
	}
}

// diff compares two snapshots and produces the change events between them.
// Documents are matched by id first, then content id, so a local document
// that later adopted its ledger id is not reported as new.
func diff(old, current *reconcile.Snapshot) []events.Event {
	byID := make(map[string]*models.Document, len(old.Documents))
	byContent := make(map[string]*models.Document, len(old.Documents))
	for _, doc := range old.Documents {
		byID[doc.ID] = doc
		if doc.ContentID != "" {
			byContent[doc.ContentID] = doc
		}
	}

	var out []events.Event
	for _, doc := range current.Documents {
		prev := byID[doc.ID]
		if prev == nil && doc.ContentID != "" {
			prev = byContent[doc.ContentID]
		}
		if prev == nil {
			out = append(out, events.Event{
				Type:       events.TypeAdded,
				DocumentID: doc.ID,
				ContentID:  doc.ContentID,
				Uploader:   doc.Uploader,
				Status:     doc.Status,
				At:         current.TakenAt,
			})
			continue
		}
		if prev.Status != doc.Status {
			out = append(out, events.Event{
				Type:           events.TypeStatusChanged,
				DocumentID:     doc.ID,
				ContentID:      doc.ContentID,
				Uploader:       doc.Uploader,
				Status:         doc.Status,
				PreviousStatus: prev.Status,
				At:             current.TakenAt,
			})
		}
	}

	oldBalances := mintedBalances(old)
	for uploader, balance := range mintedBalances(current) {
		if prev := oldBalances[uploader]; prev != balance {
			out = append(out, events.Event{
				Type:        events.TypeBalanceChanged,
				Uploader:    uploader,
				Balance:     balance,
				PreviousBal: prev,
				At:          current.TakenAt,
			})
		}
		delete(oldBalances, uploader)
	}
	for uploader, prev := range oldBalances {
		out = append(out, events.Event{
			Type:        events.TypeBalanceChanged,
			Uploader:    uploader,
			Balance:     0,
			PreviousBal: prev,
			At:          current.TakenAt,
		})
	}
	return out
}

func mintedBalances(snap *reconcile.Snapshot) map[string]uint64 {
	out := make(map[string]uint64)
	for _, doc := range snap.Documents {
		if doc.Status == models.StatusMinted && doc.MintingResult != nil {
			out[doc.Uploader] += doc.MintingResult.Amount
		}
	}
	return out
}

func (p *Poller) emit(event events.Event) {
	p.mu.Lock()
	listeners := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.IncrementEvent(string(event.Type))
	}
	for _, l := range listeners {
		p.call(l, event)
	}
}

func (p *Poller) call(l Listener, event events.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("document event listener panicked",
				"type", string(event.Type),
				"panic", r,
			)
		}
	}()
	l(event)
}
