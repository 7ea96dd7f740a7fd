package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	StateClosed   BreakerState = iota // calls pass
	StateOpen                         // calls fail fast
	StateHalfOpen                     // one trial request at a time
)

func (s BreakerState) String() string {
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

// CircuitBreaker stops order traffic to an exchange that keeps failing.
// Thread-safe for concurrent use.
type CircuitBreaker struct {
	name string
	mu   sync.Mutex
	now  func() time.Time

	state        BreakerState
	failureCount int
	successCount int
	trialing     bool
	openedAt     time.Time

	failureThreshold int           // consecutive failures before opening
	successThreshold int           // trial successes before closing
	timeout          time.Duration // open time before the first trial
}

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Now              func() time.Time // nil = time.Now
}

// DefaultCircuitBreakerConfig opens after 5 failures and retries after 30s.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		now:              now,
		state:            StateClosed,
		failureThreshold: max(cfg.FailureThreshold, 1),
		successThreshold: max(cfg.SuccessThreshold, 1),
		timeout:          cfg.Timeout,
	}
}

// Execute runs fn unless the breaker is open and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	}
	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.timeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		slog.Info("Circuit breaker transitioning to HALF_OPEN", slog.String("name", cb.name))
		fallthrough
	case StateHalfOpen:
		if cb.trialing {
			return false
		}
		cb.trialing = true
		return true
	}
	return false
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialing = false

	switch {
	case ok && cb.state == StateClosed:
		cb.failureCount = 0

	case ok && cb.state == StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			slog.Info("Circuit breaker CLOSED (recovered)", slog.String("name", cb.name))
		}

	case !ok && cb.state == StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.trip()
			slog.Warn("Circuit breaker OPEN (failures exceeded threshold)",
				slog.String("name", cb.name),
				slog.Int("failures", cb.failureCount))
		}

	case !ok && cb.state == StateHalfOpen:
		cb.trip()
		slog.Warn("Circuit breaker OPEN (half-open trial failed)", slog.String("name", cb.name))
	}
}

// trip must be called with mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.successCount = 0
}

// GetState returns the current state (for monitoring).
func (cb *CircuitBreaker) GetState() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.trialing = false
	slog.Info("Circuit breaker RESET", slog.String("name", cb.name))
}
