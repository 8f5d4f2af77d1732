// Package resilience guards the optional local scorer path.
//
// The central type is [CircuitBreaker], a run-scoped breaker: once tripped it
// stays open until the process exits. Local inference either works on this
// machine or it does not; probing it again mid-run only burns time the rate
// limiter already made scarce. [ScorerRoute] composes a breaker-guarded local
// client with a remote fallback behind the plain [llm.Client] interface.
//
// All types are safe for concurrent use.
package resilience

import (
	"log/slog"
	"sync"
)

// DefaultTripThreshold is the number of consecutive failures (of either kind)
// that disables the local path.
const DefaultTripThreshold = 3

// TripReason says why a breaker opened.
type TripReason string

const (
	// TripNone means the breaker is still closed.
	TripNone TripReason = ""

	// TripFailures means consecutive call failures reached the threshold.
	TripFailures TripReason = "consecutive_failures"

	// TripAllocation means consecutive memory-allocation errors reached the
	// threshold. Local runtimes surface these when the model does not fit.
	TripAllocation TripReason = "allocation_failures"
)

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// Threshold is the number of consecutive failures, or consecutive
	// allocation errors, that trips the breaker. Default: 3.
	Threshold int
}

// CircuitBreaker disables a failing local path for the remainder of the run.
//
// Two counters advance independently: every failure bumps the failure streak,
// and allocation failures additionally bump the allocation streak. A
// non-allocation failure breaks the allocation streak; any success clears
// both. Either streak reaching the threshold trips the breaker permanently.
type CircuitBreaker struct {
	name      string
	threshold int

	mu          sync.Mutex
	failStreak  int
	allocStreak int
	tripped     TripReason
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultTripThreshold
	}
	return &CircuitBreaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
	}
}

// Allow reports whether the guarded path may be called.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.tripped == TripNone
}

// RecordSuccess clears both failure streaks.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failStreak = 0
	cb.allocStreak = 0
}

// RecordFailure advances the failure streak, and the allocation streak when
// alloc is true. Once either streak reaches the threshold the breaker trips
// and stays tripped.
func (cb *CircuitBreaker) RecordFailure(alloc bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped != TripNone {
		return
	}

	cb.failStreak++
	if alloc {
		cb.allocStreak++
	} else {
		cb.allocStreak = 0
	}

	switch {
	case cb.allocStreak >= cb.threshold:
		cb.tripped = TripAllocation
	case cb.failStreak >= cb.threshold:
		cb.tripped = TripFailures
	default:
		return
	}
	slog.Warn("local path disabled for the remainder of the run",
		"name", cb.name,
		"reason", string(cb.tripped),
		"threshold", cb.threshold)
}

// Tripped returns the reason the breaker opened, or [TripNone].
func (cb *CircuitBreaker) Tripped() TripReason {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.tripped
}
