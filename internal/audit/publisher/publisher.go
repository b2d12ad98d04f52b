// Package publisher streams audit entries to Kafka as best-effort telemetry.
// The store append is the source of truth; a lost publication never fails the
// administrative action it describes.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"canopy/internal/audit"
	"canopy/internal/platform/kafka"
)

// produceTimeout bounds each broker write made off the caller's request path.
const produceTimeout = 5 * time.Second

// Producer is the broker write the publisher needs.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

var _ Producer = (*kafka.Client)(nil)

// Publisher emits audit entries to the audit topic. Without a buffer every
// Publish writes synchronously; with one, Publish enqueues and a worker
// drains, dropping the oldest entry when the buffer is full.
type Publisher struct {
	producer Producer
	logger   *slog.Logger

	queue   chan queued // nil in synchronous mode
	wg      sync.WaitGroup
	dropped atomic.Int64

	mu     sync.Mutex
	closed bool
}

type queued struct {
	key   []byte
	value []byte
}

// Option configures the publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithAsyncBuffer moves broker writes off the caller's path through a bounded
// channel of the given capacity. When the channel is full the oldest queued
// entry is dropped and counted, never the caller blocked.
func WithAsyncBuffer(capacity int) Option {
	return func(p *Publisher) {
		if capacity > 0 {
			p.queue = make(chan queued, capacity)
		}
	}
}

// New constructs a publisher over the given producer.
func New(producer Producer, opts ...Option) (*Publisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	p := &Publisher{producer: producer}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	if p.queue != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p, nil
}

// Publish emits one entry, keyed by entry id.
func (p *Publisher) Publish(ctx context.Context, entry audit.Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	item := queued{key: []byte(entry.ID), value: value}

	// The closed check and the enqueue stay under one lock so Close can
	// never shut the channel between them.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("audit publisher is closed")
	}
	if p.queue != nil {
		p.enqueue(item)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.produce(ctx, item)
}

// Dropped reports how many queued entries were discarded to make room.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting entries and drains whatever is queued.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// enqueue adds an item, discarding the oldest queued entry when full.
// Callers hold p.mu; every branch is non-blocking.
func (p *Publisher) enqueue(item queued) {
	select {
	case p.queue <- item:
		return
	default:
	}

	select {
	case <-p.queue:
		p.dropped.Add(1)
	default:
	}

	select {
	case p.queue <- item:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for item := range p.queue {
		if err := p.produce(context.Background(), item); err != nil {
			p.logger.Warn("failed to publish audit entry",
				"key", string(item.key),
				"error", err,
			)
		}
	}
}

func (p *Publisher) produce(ctx context.Context, item queued) error {
	ctx, cancel := context.WithTimeout(ctx, produceTimeout)
	defer cancel()

	if err := p.producer.Produce(ctx, kafka.TopicAuditEntries, item.key, item.value); err != nil {
		return fmt.Errorf("produce audit entry: %w", err)
	}
	return nil
}
