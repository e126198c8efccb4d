package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the current position of the breaker's state machine.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds breaker thresholds and timing.
type Config struct {
	// FailureThreshold is the number of consecutive failures in the
	// closed state that opens the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in the
	// half-open state that closes the breaker.
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays open before the next
	// call is allowed through as a recovery probe.
	OpenTimeout time.Duration
}

// DefaultConfig returns the thresholds used when a field is zero.
// Parameters: none.
// Returns:
//   - Config: default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// StateChange describes one breaker transition, delivered to the
// OnStateChange callback for observability.
type StateChange struct {
	Name string
	From State
	To   State
	At   time.Time
}

// Snapshot is a point-in-time view of the breaker, exposed to the
// admin surface.
type Snapshot struct {
	Name                 string     `json:"name"`
	State                State      `json:"state"`
	Forced               bool       `json:"forced,omitempty"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	LastFailureAt        *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt        *time.Time `json:"last_success_at,omitempty"`
	StateChangedAt       time.Time  `json:"state_changed_at"`
	OpenUntil            *time.Time `json:"open_until,omitempty"`
}

// OpenError is returned by Execute when the breaker rejects a call
// without invoking the protected dependency.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry in %s", e.Name, e.RetryAfter.Round(time.Millisecond))
}

// IsOpen reports whether err is (or wraps) a breaker rejection.
func IsOpen(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr)
}

// CircuitBreaker guards one external dependency. One instance is
// created at process start and shared by every caller of that
// dependency; all state is process-local and mutex-protected.
type CircuitBreaker struct {
	name          string
	cfg           Config
	onStateChange func(StateChange)

	mu             sync.Mutex
	state          State
	forced         bool
	failures       int
	successes      int
	probesInFlight int
	lastFailureAt  time.Time
	lastSuccessAt  time.Time
	changedAt      time.Time
	openUntil      time.Time

	now func() time.Time // swapped in tests
}

// New creates a breaker named after the dependency it protects.
// Zero-valued config fields fall back to DefaultConfig.
// Parameters:
//   - name: dependency name, used in errors and events.
//   - cfg: thresholds and open timeout.
// Returns:
//   - *CircuitBreaker: breaker in the closed state.
func New(name string, cfg Config) *CircuitBreaker {
	defaults := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = defaults.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}
	return &CircuitBreaker{
		name:      name,
		cfg:       cfg,
		state:     StateClosed,
		changedAt: time.Now(),
		now:       time.Now,
	}
}

// OnStateChange registers a callback invoked after every transition.
// The callback runs outside the breaker's lock; register before the
// breaker is shared.
func (cb *CircuitBreaker) OnStateChange(fn func(StateChange)) {
	cb.onStateChange = fn
}

// Execute runs work through the breaker. If the breaker rejects the
// call it returns *OpenError without invoking work; otherwise the
// outcome of work is recorded and its error returned as-is.
func (cb *CircuitBreaker) Execute(ctx context.Context, work func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := work(ctx)
	cb.record(err == nil)
	return err
}

// allow decides whether a call may proceed, transitioning open to
// half-open once the open timeout has elapsed.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()

	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return nil
	case StateOpen:
		if cb.forced {
			// A forced-open breaker never times out into half-open.
			err := &OpenError{Name: cb.name, RetryAfter: 0}
			cb.mu.Unlock()
			return err
		}
		now := cb.now()
		if now.Before(cb.openUntil) {
			err := &OpenError{Name: cb.name, RetryAfter: cb.openUntil.Sub(now)}
			cb.mu.Unlock()
			return err
		}
		change := cb.transition(StateHalfOpen)
		cb.probesInFlight = 1
		cb.mu.Unlock()
		cb.emit(change)
		return nil
	default: // StateHalfOpen
		// Only the calls needed to confirm recovery are let through.
		if cb.probesInFlight >= cb.cfg.SuccessThreshold {
			err := &OpenError{Name: cb.name, RetryAfter: 0}
			cb.mu.Unlock()
			return err
		}
		cb.probesInFlight++
		cb.mu.Unlock()
		return nil
	}
}

// record updates counters and state from one call outcome.
func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	var change *StateChange
	now := cb.now()

	if cb.state == StateHalfOpen && cb.probesInFlight > 0 {
		cb.probesInFlight--
	}

	if success {
		cb.lastSuccessAt = now
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				closed := cb.transition(StateClosed)
				change = &closed
			}
		}
	} else {
		cb.lastFailureAt = now
		switch cb.state {
		case StateClosed:
			cb.failures++
			if cb.failures >= cb.cfg.FailureThreshold {
				change = cb.open(now)
			}
		case StateHalfOpen:
			// A single failed probe re-opens immediately.
			change = cb.open(now)
		}
	}

	cb.mu.Unlock()
	if change != nil {
		cb.emit(*change)
	}
}

// open transitions to the open state and arms the retry deadline.
// Caller holds the lock.
func (cb *CircuitBreaker) open(now time.Time) *StateChange {
	cb.openUntil = now.Add(cb.cfg.OpenTimeout)
	change := cb.transition(StateOpen)
	return &change
}

// transition switches state and resets counters. Caller holds the lock.
func (cb *CircuitBreaker) transition(to State) StateChange {
	change := StateChange{Name: cb.name, From: cb.state, To: to, At: cb.now()}
	cb.state = to
	cb.forced = false
	cb.changedAt = change.At
	cb.failures = 0
	cb.successes = 0
	if to != StateHalfOpen {
		cb.probesInFlight = 0
	}
	return change
}

func (cb *CircuitBreaker) emit(change StateChange) {
	if cb.onStateChange != nil {
		cb.onStateChange(change)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a point-in-time view for monitoring.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := Snapshot{
		Name:                 cb.name,
		State:                cb.state,
		Forced:               cb.forced,
		ConsecutiveFailures:  cb.failures,
		ConsecutiveSuccesses: cb.successes,
		StateChangedAt:       cb.changedAt,
	}
	if !cb.lastFailureAt.IsZero() {
		t := cb.lastFailureAt
		snap.LastFailureAt = &t
	}
	if !cb.lastSuccessAt.IsZero() {
		t := cb.lastSuccessAt
		snap.LastSuccessAt = &t
	}
	if cb.state == StateOpen && !cb.openUntil.IsZero() {
		t := cb.openUntil
		snap.OpenUntil = &t
	}
	return snap
}

// ForceOpen opens the breaker regardless of call history and holds it
// open until ForceClose or Reset; the open timeout does not apply.
// Operational override; must only be reachable from trusted admin
// surfaces.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	if cb.state == StateOpen {
		cb.forced = true
		cb.openUntil = time.Time{}
		cb.mu.Unlock()
		return
	}
	change := cb.transition(StateOpen)
	cb.forced = true
	cb.openUntil = time.Time{}
	cb.mu.Unlock()
	cb.emit(change)
}

// ForceClose closes the breaker regardless of call history.
func (cb *CircuitBreaker) ForceClose() {
	cb.mu.Lock()
	if cb.state == StateClosed {
		cb.mu.Unlock()
		return
	}
	change := cb.transition(StateClosed)
	cb.mu.Unlock()
	cb.emit(change)
}

// Reset returns the breaker to its initial closed state with all
// counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	if cb.state == StateClosed {
		cb.failures = 0
		cb.successes = 0
		cb.mu.Unlock()
		return
	}
	change := cb.transition(StateClosed)
	cb.mu.Unlock()
	cb.emit(change)
}
