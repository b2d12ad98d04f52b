package poller

import (
	"context"
	"log/slog"
	"time"

	"canopy/internal/document/events"
)

const forwardTimeout = 5 * time.Second

// NewForwarder adapts an event publisher into a Listener, typically to relay
// poller diffs onto the document events topic. Publish failures are logged
// and dropped; forwarding is ops telemetry, not a delivery guarantee.
func NewForwarder(publisher events.Publisher, logger *slog.Logger) Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(event events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		defer cancel()
		if err := publisher.Publish(ctx, event); err != nil {
			logger.Warn("failed to forward document event",
				"type", string(event.Type),
				"document_id", event.DocumentID,
				"error", err,
			)
		}
	}
}
