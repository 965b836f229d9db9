package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/mkorolev/coindeck/internal/domain"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	b := NewCircuitBreaker(DefaultCircuitBreakerConfig(), zap.NewNop())
	b.now = clock.now
	return b
}

func fail(ctx context.Context) error { return errBoom }

func succeed(ctx context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterFiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.Equal(t, StateClosed, b.State())
		require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestCircuitBreaker_SuccessDecaysFailureCount(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	// 4 failures, one success, then one more failure: still closed
	for i := 0; i < 4; i++ {
		require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	}
	require.NoError(t, b.Execute(ctx, succeed))
	require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, b.State())
}

func TestCircuitBreaker_FailsFastWhileOpen(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	clock.advance(10 * time.Second)
	invoked := false
	err := b.Execute(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.False(t, invoked)
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, fail)
	}
	clock.advance(31 * time.Second)

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, fail)
	}
	clock.advance(31 * time.Second)
	require.NoError(t, b.Execute(ctx, succeed))
	require.Equal(t, StateHalfOpen, b.State())

	require.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestCircuitBreaker_ClosesAfterThreeProbationSuccesses(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, fail)
	}
	clock.advance(31 * time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Execute(ctx, succeed))
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Status().Failures)
}
