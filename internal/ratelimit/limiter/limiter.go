// Package limiter resolves the budget for an endpoint class and checks an
// identified caller against it.
package limiter

import (
	"context"
	"fmt"
	"log/slog"

	"canopy/internal/ratelimit/models"
	"canopy/internal/ratelimit/store"
)

// Limiter maps endpoint classes to budgets and delegates window accounting
// to the backing store.
type Limiter struct {
	store  store.Store
	limits map[models.EndpointClass]models.Limit
	logger *slog.Logger
}

type Option func(*Limiter)

// WithLimits replaces the default per-class budgets. Classes absent from the
// map keep their defaults.
func WithLimits(limits map[models.EndpointClass]models.Limit) Option {
	return func(l *Limiter) {
		for class, limit := range limits {
			l.limits[class] = limit
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(s store.Store, opts ...Option) (*Limiter, error) {
	if s == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	l := &Limiter{
		store:  s,
		limits: models.DefaultLimits(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check records one attempt for the identifier against the class budget.
// Identifiers from different classes never share a window.
func (l *Limiter) Check(ctx context.Context, identifier string, class models.EndpointClass) (*models.Result, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("unknown endpoint class %q", class)
	}
	limit, ok := l.limits[class]
	if !ok {
		return nil, fmt.Errorf("no budget configured for class %q", class)
	}

	key := "ratelimit:" + string(class) + ":" + models.SanitizeKeySegment(identifier)
	result, err := l.store.Allow(ctx, key, limit.Requests, limit.Window)
	if err != nil {
		return nil, fmt.Errorf("check %s window: %w", class, err)
	}
	if !result.Allowed {
		l.logger.Debug("rate limit exceeded",
			"class", string(class),
			"identifier", identifier,
			"retry_after", result.RetryAfter,
		)
	}
	return result, nil
}

// Reset clears the identifier's window for the class. Tests and support
// tooling use it; request handling never does.
func (l *Limiter) Reset(ctx context.Context, identifier string, class models.EndpointClass) error {
	key := "ratelimit:" + string(class) + ":" + models.SanitizeKeySegment(identifier)
	if err := l.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset %s window: %w", class, err)
	}
	return nil
}
