// Package kafka wraps the franz-go client used to publish audit entries and
// document change events for downstream consumers.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Topics published by this service.
const (
	TopicAuditEntries   = "canopy.audit.v1"
	TopicDocumentEvents = "canopy.document-events.v1"
)

// Client is a thin producing wrapper. Safe for concurrent use.
type Client struct {
	client *kgo.Client
	logger *slog.Logger
}

// New connects to the given brokers. The connection is lazy; call EnsureTopics
// at startup to fail fast on misconfiguration.
func New(brokers []string, logger *slog.Logger) (*Client, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &Client{client: client, logger: logger}, nil
}

// EnsureTopics creates the given topics if they do not exist.
func (c *Client) EnsureTopics(ctx context.Context, topics ...string) error {
	adm := kadm.NewClient(c.client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("kafka: create topics: %w", err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && t.Err != kerr.TopicAlreadyExists {
			return fmt.Errorf("kafka: create topic %s: %w", t.Topic, t.Err)
		}
		c.logger.Debug("kafka topic ready", "topic", t.Topic)
	}
	return nil
}

// Produce publishes one record synchronously.
func (c *Client) Produce(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := c.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered records and releases the connection.
func (c *Client) Close() {
	c.client.Close()
}
