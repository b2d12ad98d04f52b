// Package retry provides bounded retry with an explicit retryable-class allowlist.
//
// Remote collaborators (ledger, content store) classify their failures; callers
// declare per-operation which classes are worth retrying. Everything else
// propagates unchanged on the first attempt. Delay grows exponentially between
// attempts to avoid hammering a congested remote; no jitter is applied because
// callers are single-flight per document.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Class is the normalized failure taxonomy remote collaborators report.
type Class string

const (
	// ClassNetwork indicates the remote could not be reached.
	ClassNetwork Class = "network"
	// ClassTimeout indicates the call exceeded its deadline.
	ClassTimeout Class = "timeout"
	// ClassCongestion indicates the remote shed load (rate limit, backpressure).
	ClassCongestion Class = "congestion"
	// ClassStoreUnavailable indicates the remote store rejected writes as unavailable.
	ClassStoreUnavailable Class = "store_unavailable"
	// ClassValidation indicates the remote rejected the payload; retrying cannot help.
	ClassValidation Class = "validation"
	// ClassNotFound indicates the addressed record does not exist remotely.
	ClassNotFound Class = "not_found"
	// ClassConflict indicates the remote saw a conflicting write.
	ClassConflict Class = "conflict"
	// ClassInternal is the default for unclassified failures.
	ClassInternal Class = "internal"
)

// Classified is implemented by errors that carry a retry class.
type Classified interface {
	RetryClass() Class
}

// ClassOf walks the error chain for a retry class, defaulting to ClassInternal.
// Context cancellation and deadline expiry classify as timeout so policies can
// opt in or out explicitly.
func ClassOf(err error) Class {
	var classified Classified
	if errors.As(err, &classified) {
		return classified.RetryClass()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTimeout
	}
	return ClassInternal
}

// Policy bounds one retryable operation. MaxAttempts counts total attempts
// including the first; a zero or negative value means a single attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   []Class
}

func (p Policy) allows(class Class) bool {
	for _, c := range p.Retryable {
		if c == class {
			return true
		}
	}
	return false
}

func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Executor runs operations under a Policy. The zero value is usable; options
// attach logging and metrics.
type Executor struct {
	logger  *slog.Logger
	metrics *Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger attaches a logger for retry decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics attaches retry attempt metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithSleep replaces the backoff sleep so tests do not wait in real time.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// NewExecutor builds an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do invokes op, retrying per policy. The operation name is used for logs and
// metrics only. The last error is returned unchanged so callers can still
// classify it; exhausted retries do not re-wrap.
func (e *Executor) Do(ctx context.Context, operation string, policy Policy, op func(context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		class := ClassOf(lastErr)
		if !policy.allows(class) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if e.metrics != nil {
			e.metrics.IncRetry(operation)
		}
		if e.logger != nil {
			e.logger.DebugContext(ctx, "retrying operation",
				"operation", operation,
				"attempt", attempt,
				"class", string(class),
				"error", lastErr,
			)
		}
		pause := e.sleep
		if pause == nil {
			pause = sleep
		}
		if err := pause(ctx, policy.delay(attempt)); err != nil {
			return lastErr
		}
	}

	if e.metrics != nil {
		e.metrics.IncExhausted(operation)
	}
	if e.logger != nil {
		e.logger.WarnContext(ctx, "retries exhausted",
			"operation", operation,
			"attempts", attempts,
			"error", lastErr,
		)
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
