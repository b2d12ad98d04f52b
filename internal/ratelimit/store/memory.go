package store

import (
	"context"
	"sync"
	"time"

	"canopy/internal/ratelimit/models"
)

// Memory is a process-local sliding-window store. A window keeps the
// timestamps of its attempts; expired entries are dropped on every touch, so
// an idle key shrinks to nothing the next time it is seen.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time
}

type window struct {
	attempts []time.Time
	span     time.Duration
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

var _ Store = (*Memory)(nil)

// Allow checks and records one attempt against key's window.
func (s *Memory) Allow(ctx context.Context, key string, limit int, span time.Duration) (*models.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.windows[key]
	if w == nil {
		w = &window{span: span}
		s.windows[key] = w
	}
	w.expire(now)

	if len(w.attempts) >= limit {
		resetAt := w.attempts[0].Add(span)
		return &models.Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(now, resetAt),
		}, nil
	}

	w.attempts = append(w.attempts, now)
	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.attempts),
		ResetAt:   w.attempts[0].Add(span),
	}, nil
}

// Reset clears the window for key.
func (s *Memory) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// expire drops attempts older than the window span. The slice stays sorted
// because appends only ever add the current instant.
func (w *window) expire(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for ; i < len(w.attempts); i++ {
		if w.attempts[i].After(cutoff) {
			break
		}
	}
	w.attempts = w.attempts[i:]
}

// retryAfterSeconds rounds the wait up so a client sleeping the advertised
// number of seconds always lands past the reset.
func retryAfterSeconds(now, resetAt time.Time) int {
	wait := resetAt.Sub(now)
	if wait <= 0 {
		return 1
	}
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
