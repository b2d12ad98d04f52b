package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"canopy/internal/platform/kafka"
)

// KafkaPublisher writes events to the document events topic, keyed by
// document id so per-document ordering is preserved.
type KafkaPublisher struct {
	client *kafka.Client
	logger *slog.Logger
}

func NewKafkaPublisher(client *kafka.Client, logger *slog.Logger) (*KafkaPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("kafka client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{client: client, logger: logger}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal document event: %w", err)
	}
	if err := p.client.Produce(ctx, kafka.TopicDocumentEvents, []byte(event.DocumentID), value); err != nil {
		return fmt.Errorf("produce document event: %w", err)
	}
	p.logger.DebugContext(ctx, "document event published",
		"type", string(event.Type),
		"document_id", event.DocumentID,
	)
	return nil
}
