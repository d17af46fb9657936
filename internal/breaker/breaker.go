// Package breaker provides a small circuit breaker used to stop hammering
// the remote history API when it is failing. After a run of consecutive
// failures the breaker opens for a cooldown period; the first call after the
// cooldown is let through as a probe, and its outcome decides whether the
// breaker closes again or reopens.
package breaker

import (
	"sync"
	"time"
)

// State of the breaker
type State int

const (
	Closed  State = iota // calls pass through
	Open                 // calls fail fast until the cooldown elapses
	Probing              // one call allowed through to test the service
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 3
	defaultCooldown         = time.Minute
)

// Breaker tracks consecutive failures of a single remote dependency
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration

	state      State
	failures   int
	openedAt   time.Time
	probeInUse bool
	now        func() time.Time
}

// New creates a breaker that opens after failureThreshold consecutive
// failures and stays open for cooldown. Non-positive arguments fall back to
// defaults.
func New(failureThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. In the probing state only one
// in-flight probe is allowed at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = Probing
		b.probeInUse = true
		return true
	case Probing:
		if b.probeInUse {
			return false
		}
		b.probeInUse = true
		return true
	}
	return true
}

// RecordSuccess marks the last allowed call as successful, closing the
// breaker if it was probing
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probeInUse = false
	b.state = Closed
}

// RecordFailure marks the last allowed call as failed. A failed probe
// reopens the breaker immediately; in the closed state the breaker opens
// once the failure threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeInUse = false
	switch b.state {
	case Probing:
		b.state = Open
		b.openedAt = b.now()
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = Open
			b.openedAt = b.now()
		}
	}
}

// Reset forces the breaker back to closed
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probeInUse = false
}

// Snapshot is a point-in-time view of the breaker for diagnostics
type Snapshot struct {
	State    State
	Failures int
	OpenedAt time.Time
}

// Snapshot returns the current breaker state
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{State: b.state, Failures: b.failures, OpenedAt: b.openedAt}
}
