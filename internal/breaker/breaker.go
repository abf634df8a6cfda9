// Package breaker implements a per-provider circuit breaker: Closed,
// Open, and HalfOpen states guarding calls to a flaky upstream.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker's trip and recovery behavior.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenRetries  int
}

// DefaultConfig returns sane defaults: trip after 5 consecutive failures,
// probe again after 30s, allow 2 successful probes before fully closing.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenRetries:  2,
	}
}

// Stats is a point-in-time snapshot of breaker state, safe to read
// without holding the breaker's internal lock.
type Stats struct {
	State            State
	Failures         int
	Successes        int
	HalfOpenAttempts int
	LastSuccess      time.Time
	LastFailure      time.Time
	NextRetry        time.Time
}

// Breaker guards calls to a single upstream. Safe for concurrent use: in
// HalfOpen, up to HalfOpenRetries probe calls may be in flight at once;
// further callers are refused until a probe resolves.
type Breaker struct {
	mu               sync.Mutex
	cfg              Config
	state            State
	failures         int
	successes        int
	halfOpenAttempts int
	halfOpenInFlight int
	lastSuccess      time.Time
	lastFailure      time.Time
	nextRetry        time.Time

	// OnStateChange, if set, is invoked synchronously whenever the
	// breaker transitions between states. Callers that need to publish
	// domain events wire it in after construction.
	OnStateChange func(from, to State)
}

// New builds a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	if cfg.HalfOpenRetries <= 0 {
		cfg.HalfOpenRetries = DefaultConfig().HalfOpenRetries
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Execute runs fn if the breaker currently admits calls, recording the
// outcome. It returns aggregator.ErrCircuitOpen without calling fn when
// the breaker is tripped and not yet due for a probe.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.admit() {
		return fmt.Errorf("breaker: %w", aggregator.ErrCircuitOpen)
	}
	err := fn(ctx)
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// admit reports whether a call should proceed, transitioning Open->HalfOpen
// once the recovery timeout has elapsed and reserving one of the HalfOpen
// probe slots.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Now().Before(b.nextRetry) {
			return false
		}
		b.transition(HalfOpen)
		b.halfOpenInFlight = 1
		return true
	case HalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenRetries {
			return false
		}
		b.halfOpenInFlight++
		return true
	default:
		return false
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes++
	b.lastSuccess = time.Now()

	switch b.state {
	case HalfOpen:
		b.halfOpenAttempts++
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if b.halfOpenAttempts >= b.cfg.HalfOpenRetries {
			b.failures = 0
			b.halfOpenAttempts = 0
			b.halfOpenInFlight = 0
			b.transition(Closed)
		}
	case Closed:
		b.failures = 0
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case HalfOpen:
		b.halfOpenInFlight = 0
		b.halfOpenAttempts = 0
		b.nextRetry = time.Now().Add(b.cfg.RecoveryTimeout)
		b.transition(Open)
	case Closed:
		if b.failures >= b.cfg.FailureThreshold {
			b.nextRetry = time.Now().Add(b.cfg.RecoveryTimeout)
			b.transition(Open)
		}
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if from != to && b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}

// Reset forces the breaker back to Closed, clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.successes = 0
	b.halfOpenAttempts = 0
	b.halfOpenInFlight = 0
	b.transition(Closed)
}

// UpdateConfig swaps in new trip/recovery parameters without disturbing
// the current state or counters. Zero fields fall back to defaults, as in
// New.
func (b *Breaker) UpdateConfig(cfg Config) {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	if cfg.HalfOpenRetries <= 0 {
		cfg.HalfOpenRetries = DefaultConfig().HalfOpenRetries
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
}

// Stats returns a snapshot of the breaker's current state and counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:            b.state,
		Failures:         b.failures,
		Successes:        b.successes,
		HalfOpenAttempts: b.halfOpenAttempts,
		LastSuccess:      b.lastSuccess,
		LastFailure:      b.lastFailure,
		NextRetry:        b.nextRetry,
	}
}
