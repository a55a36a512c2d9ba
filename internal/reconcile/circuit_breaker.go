package reconcile

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed lets calls through
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout elapses
	CircuitOpen
	// CircuitHalfOpen lets a probe call through
	CircuitHalfOpen
)

// String returns the string representation of CircuitState
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen indicates the circuit breaker is open and blocking calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops hammering a failing server with cross-check requests
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        int
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a closed breaker that opens after failureThreshold consecutive failures
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		state:            CircuitClosed,
	}
}

// Call runs fn unless the breaker is open
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.CanAttempt() {
		return ErrCircuitOpen
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailureLocked()
		return err
	}
	cb.recordSuccessLocked()
	return nil
}

// recordSuccessLocked must hold lock
func (cb *CircuitBreaker) recordSuccessLocked() {
	cb.failures = 0
	cb.state = CircuitClosed
}

// recordFailureLocked must hold lock
func (cb *CircuitBreaker) recordFailureLocked() {
	cb.failures++
	cb.lastFailureTime = cb.now()

	// A failed probe reopens immediately
	if cb.state == CircuitHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = CircuitOpen
	}
}

// State returns the current state, moving Open to HalfOpen once the reset timeout has elapsed
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailureTime) >= cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.failures = 0
	}
	return cb.state
}

// Failures returns the consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// CanAttempt returns true if the circuit breaker allows an attempt
func (cb *CircuitBreaker) CanAttempt() bool {
	return cb.State() != CircuitOpen
}

// Reset returns the breaker to closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.lastFailureTime = time.Time{}
}
