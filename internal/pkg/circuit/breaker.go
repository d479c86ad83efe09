package circuit

import (
	"sync"
	"time"

	"polyagent/internal/logger"
)

type State int

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
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards a flaky upstream (the analysis provider, the order
// venue). After threshold consecutive failures it opens and rejects calls
// until the cooldown has passed, then lets a single probe through.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{name: name, threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. An open breaker past its
// cooldown moves to half-open and admits exactly this one probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return true
	}
	if time.Since(cb.openedAt) > cb.cooldown {
		cb.moveTo(StateHalfOpen)
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.moveTo(StateClosed)
	}
	cb.failures = 0
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.openedAt = time.Now()

	if cb.state == StateHalfOpen {
		// Probe failed, back off for another full cooldown.
		cb.moveTo(StateOpen)
		return
	}
	if cb.state == StateClosed && cb.failures >= cb.threshold {
		cb.moveTo(StateOpen)
	}
}

// CurrentState is a point-in-time read, mostly for logs and tests.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) moveTo(next State) {
	prev := cb.state
	cb.state = next
	logger.Warnf("circuit %s: %s -> %s (failures=%d/%d, cooldown=%s)",
		cb.name, prev, next, cb.failures, cb.threshold, cb.cooldown)
}
