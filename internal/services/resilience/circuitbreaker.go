package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/mkorolev/coindeck/internal/domain"
	"go.uber.org/zap"
)

// BreakerState is the circuit breaker state. The state machine is
// cyclic: CLOSED -> OPEN -> HALF_OPEN -> CLOSED.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "CLOSED"
}

// CircuitBreakerConfig tunes the trip and recovery behaviour.
type CircuitBreakerConfig struct {
	FailureThreshold   int
	Cooldown           time.Duration
	ProbationSuccesses int
}

// DefaultCircuitBreakerConfig returns the production defaults: trip on
// five net failures, 30s cooldown, three probation successes to close.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:   5,
		Cooldown:           30 * time.Second,
		ProbationSuccesses: 3,
	}
}

// CircuitBreaker wraps external calls and fails fast while the upstream
// is considered broken. Execute is the only call surface.
type CircuitBreaker struct {
	mu        sync.Mutex
	cfg       CircuitBreakerConfig
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	logger    *zap.Logger
	now       func() time.Time
}

// NewCircuitBreaker creates a breaker in the CLOSED state.
func NewCircuitBreaker(cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold == 0 {
		cfg = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{
		cfg:    cfg,
		state:  StateClosed,
		logger: logger,
		now:    time.Now,
	}
}

// Execute runs op through the breaker. While OPEN it returns
// domain.ErrCircuitOpen without invoking op.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.allow() {
		return domain.ErrCircuitOpen
	}
	err := op(ctx)
	b.record(err == nil)
	return err
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = StateHalfOpen
			b.successes = 0
			b.logger.Info("circuit breaker entering probation")
			return true
		}
		return false
	}
	return false
}

func (b *CircuitBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.ProbationSuccesses {
				b.state = StateClosed
				b.failures = 0
				b.logger.Info("circuit breaker closed")
			}
		case StateClosed:
			if b.failures > 0 {
				b.failures--
			}
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		// A single probation failure reopens the circuit immediately.
		b.trip()
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *CircuitBreaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.successes = 0
	b.logger.Warn("circuit breaker opened",
		zap.Int("failures", b.failures),
		zap.Duration("cooldown", b.cfg.Cooldown))
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CircuitBreakerStatus is an observability snapshot.
type CircuitBreakerStatus struct {
	State    string    `json:"state"`
	Failures int       `json:"failures"`
	OpenedAt time.Time `json:"openedAt,omitempty"`
}

// Status returns the current breaker state for observability.
func (b *CircuitBreaker) Status() CircuitBreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return CircuitBreakerStatus{
		State:    b.state.String(),
		Failures: b.failures,
		OpenedAt: b.openedAt,
	}
}
