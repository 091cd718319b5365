package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BreakerState identifies the circuit breaker state machine position.
type BreakerState string

const (
	// StateClosed lets requests through while counting failures.
	StateClosed BreakerState = "closed"
	// StateOpen rejects requests until the recovery timeout elapses.
	StateOpen BreakerState = "open"
	// StateHalfOpen allows a single trial request.
	StateHalfOpen BreakerState = "half_open"
)

// BreakerOpenError is returned when the breaker rejects a call outright.
type BreakerOpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open until %s", e.Name, e.RetryAt.Format(time.RFC3339))
}

// BreakerConfig tunes a single breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a trial call.
	RecoveryTimeout time.Duration
	// Ignore marks errors that must not count toward the failure threshold.
	Ignore func(error) bool
}

// DefaultBreakerConfig returns the defaults used for unconfigured dependencies.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// BreakerSnapshot is a point-in-time view for the admin surface.
type BreakerSnapshot struct {
	Name         string       `json:"name"`
	State        BreakerState `json:"state"`
	FailureCount int          `json:"failure_count"`
	SuccessCount int          `json:"success_count"`
	LastFailure  time.Time    `json:"last_failure,omitzero"`
	LastSuccess  time.Time    `json:"last_success,omitzero"`
	NextAttempt  time.Time    `json:"next_attempt,omitzero"`
}

// Breaker guards one named dependency.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu            sync.Mutex
	state         BreakerState
	failureCount  int
	successCount  int
	lastFailure   time.Time
	lastSuccess   time.Time
	nextAttempt   time.Time
	trialInFlight bool

	now func() time.Time
}

// NewBreaker constructs a breaker for the named dependency.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Name returns the dependency name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op unless the circuit is open. It is the sole entry point:
// state transitions happen only here.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := op(ctx)
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Before(b.nextAttempt) {
			return &BreakerOpenError{Name: b.name, RetryAt: b.nextAttempt}
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &BreakerOpenError{Name: b.name, RetryAt: b.nextAttempt}
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	if err == nil || (b.cfg.Ignore != nil && b.cfg.Ignore(err)) {
		b.recordSuccess()
		return
	}
	b.recordFailure()
}

func (b *Breaker) recordSuccess() {
	b.successCount++
	b.lastSuccess = b.now()
	// Only consecutive failures count toward the threshold.
	b.failureCount = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
}

func (b *Breaker) recordFailure() {
	b.failureCount++
	b.lastFailure = b.now()
	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.open()
		}
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.nextAttempt = b.now().Add(b.cfg.RecoveryTimeout)
}

// Snapshot captures the current counters.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Name:         b.name,
		State:        b.state,
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		LastFailure:  b.lastFailure,
		LastSuccess:  b.lastSuccess,
		NextAttempt:  b.nextAttempt,
	}
}

// Registry creates and caches breakers by dependency name for the process
// lifetime.
type Registry struct {
	defaults BreakerConfig
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry constructs a Registry with shared defaults.
func NewRegistry(defaults BreakerConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		defaults: defaults,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named dependency, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.defaults)
	r.breakers[name] = b
	r.logger.Debug("circuit breaker created", slog.String("dependency", name))
	return b
}

// Snapshots lists every known breaker's state.
func (r *Registry) Snapshots() []BreakerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshots := make([]BreakerSnapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		snapshots = append(snapshots, b.Snapshot())
	}
	return snapshots
}
