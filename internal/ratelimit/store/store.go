// Package store provides the sliding-window counters behind the rate
// limiter: a process-local implementation and a redis one for deployments
// with more than one server.
package store

import (
	"context"
	"time"

	"canopy/internal/ratelimit/models"
)

// Store records one request attempt against a keyed sliding window.
type Store interface {
	// Allow checks the window for key and, when under limit, records the
	// attempt. The result carries the remaining budget either way.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
	// Reset clears the window for key.
	Reset(ctx context.Context, key string) error
}
