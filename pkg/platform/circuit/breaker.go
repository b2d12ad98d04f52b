// Package circuit provides a named circuit breaker for remote collaborators.
//
// The ledger client guards every call with a Breaker: consecutive failures open
// the circuit, callers short-circuit to their degraded path while it is open,
// and after a cooldown a single trial request probes the remote before the
// success threshold closes it again.
package circuit

import (
	"sync"
	"time"
)

// State is the externally visible breaker state.
type State string

const (
	// StateClosed means the primary path is healthy.
	StateClosed State = "closed"
	// StateOpen means calls should take the fallback path.
	StateOpen State = "open"
)

// StateChange reports a transition caused by recording an outcome. Callers use
// it to log and gauge transitions exactly once.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive failures and successes for one remote dependency.
type Breaker struct {
	mu sync.Mutex

	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time

	failures  int
	successes int
	open      bool
	halfOpen  bool
	openUntil time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many successes while open close the circuit.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open before Allow permits a
// trial request.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a closed Breaker with default thresholds (5 failures to open,
// 1 success to close, 30s cooldown).
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 1,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return StateOpen
	}
	return StateClosed
}

// IsOpen returns true if the circuit is currently open.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Allow reports whether a call may proceed. While open it permits exactly one
// trial request per cooldown expiry; the trial's outcome decides what happens
// next.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if b.halfOpen {
		return false
	}
	if b.now().After(b.openUntil) {
		b.halfOpen = true
		return true
	}
	return false
}

// RecordFailure records a failed call. The first return reports whether the
// caller should use its fallback path; the StateChange is set only on the
// closed-to-open transition.
func (b *Breaker) RecordFailure() (bool, StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		// A failed trial re-arms the cooldown.
		b.successes = 0
		b.halfOpen = false
		b.openUntil = b.now().Add(b.cooldown)
		return true, StateChange{}
	}

	b.failures++
	if b.failures >= b.failureThreshold {
		b.open = true
		b.halfOpen = false
		b.successes = 0
		b.openUntil = b.now().Add(b.cooldown)
		return true, StateChange{Opened: true}
	}
	return false, StateChange{}
}

// RecordSuccess records a successful call. The first return reports whether
// the caller may use the primary path; the StateChange is set only on the
// open-to-closed transition.
func (b *Breaker) RecordSuccess() (bool, StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		b.failures = 0
		return true, StateChange{}
	}

	b.halfOpen = false
	b.successes++
	if b.successes >= b.successThreshold {
		b.open = false
		b.failures = 0
		b.successes = 0
		return true, StateChange{Closed: true}
	}
	return false, StateChange{}
}

// Reset manually closes the circuit and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.successes = 0
	b.open = false
	b.halfOpen = false
}
