// Package breaker implements a three-state circuit breaker guarding the
// cross-server event fabric's network broadcast phase.
package breaker

import (
	"fmt"
	"sync/atomic"
	"time"
)

// State is one of the three circuit breaker states.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds the thresholds governing state transitions.
type Config struct {
	// FailureThreshold is the number of consecutive failures in CLOSED
	// state that trips the breaker to OPEN.
	FailureThreshold int64
	// SuccessThreshold is the number of consecutive successes in
	// HALF_OPEN state required to reclose the breaker.
	SuccessThreshold int64
	// OpenTimeout is how long the breaker stays OPEN before allowing a
	// single trial request through as HALF_OPEN.
	OpenTimeout time.Duration
}

// CircuitBreaker is a lock-free three-state breaker. It is a direct port
// of the fixed-threshold breaker used to gate network calls: CLOSED lets
// everything through and counts failures; enough consecutive failures
// trips it OPEN; after OpenTimeout it moves to HALF_OPEN and lets calls
// through; enough consecutive successes there recloses it, any failure
// reopens it.
type CircuitBreaker struct {
	cfg Config

	state           atomic.Int32
	failureCount    atomic.Int64
	successCount    atomic.Int64
	lastFailureNano atomic.Int64
}

// New constructs a CircuitBreaker in the CLOSED state.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	cb := &CircuitBreaker{cfg: cfg}
	cb.state.Store(int32(StateClosed))
	return cb
}

// AllowRequest reports whether a call may proceed. In OPEN state it
// transitions to HALF_OPEN once OpenTimeout has elapsed since the last
// recorded failure and lets the calling goroutine's request through.
// HALF_OPEN does not limit the number of trial calls: every call made
// while the breaker is HALF_OPEN is allowed until a recorded outcome
// moves it to CLOSED or OPEN.
func (cb *CircuitBreaker) AllowRequest() bool {
	switch State(cb.state.Load()) {
	case StateClosed:
		return true
	case StateHalfOpen:
		return true
	case StateOpen:
		elapsed := time.Duration(nowNano() - cb.lastFailureNano.Load())
		if elapsed >= cb.cfg.OpenTimeout {
			cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen))
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call. In HALF_OPEN, successCount
// accumulates until SuccessThreshold recloses the breaker; in CLOSED it
// resets failureCount to zero.
func (cb *CircuitBreaker) RecordSuccess() {
	switch State(cb.state.Load()) {
	case StateHalfOpen:
		n := cb.successCount.Add(1)
		if n >= cb.cfg.SuccessThreshold {
			cb.reclose()
		}
	case StateClosed:
		cb.failureCount.Store(0)
	}
}

// RecordFailure records a failed call. In CLOSED, failureCount
// accumulates until FailureThreshold trips the breaker OPEN. In
// HALF_OPEN, any failure reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.lastFailureNano.Store(nowNano())

	switch State(cb.state.Load()) {
	case StateClosed:
		n := cb.failureCount.Add(1)
		if n >= cb.cfg.FailureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state.Store(int32(StateOpen))
	cb.successCount.Store(0)
}

func (cb *CircuitBreaker) reclose() {
	cb.state.Store(int32(StateClosed))
	cb.failureCount.Store(0)
	cb.successCount.Store(0)
}

// Reset forces the breaker back to CLOSED with all counters zeroed.
func (cb *CircuitBreaker) Reset() {
	cb.state.Store(int32(StateClosed))
	cb.failureCount.Store(0)
	cb.successCount.Store(0)
	cb.lastFailureNano.Store(0)
}

// State returns the current state.
func (cb *CircuitBreaker) State() State { return State(cb.state.Load()) }

// FailureCount returns the current consecutive-failure count. It is
// meaningful only in CLOSED state; other states leave it at whatever
// value it held on the last transition.
func (cb *CircuitBreaker) FailureCount() int64 { return cb.failureCount.Load() }

// SuccessCount returns the current consecutive-success count
// accumulated in HALF_OPEN state.
func (cb *CircuitBreaker) SuccessCount() int64 { return cb.successCount.Load() }

func (cb *CircuitBreaker) String() string {
	return fmt.Sprintf("CircuitBreaker{state=%s, failures=%d, successes=%d}",
		cb.State(), cb.FailureCount(), cb.SuccessCount())
}

// nowNano is a var so tests can fake elapsed time without sleeping.
var nowNano = func() int64 { return time.Now().UnixNano() }
