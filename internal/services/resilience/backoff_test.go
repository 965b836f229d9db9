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

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassCircuitOpen, Classify(domain.ErrCircuitOpen))
	assert.Equal(t, ClassCircuitOpen, Classify(errors.Wrap(domain.ErrCircuitOpen, "fetch tickers")))
	assert.Equal(t, ClassRateLimit, Classify(&domain.RateLimitError{Priority: "critical"}))
	assert.Equal(t, ClassServer, Classify(&domain.ServerError{Status: 503}))
	assert.Equal(t, ClassDefault, Classify(errors.New("weird")))
}

func TestBackoff_DelayMonotonicAndBounded(t *testing.T) {
	b := NewBackoff(zap.NewNop())

	bases := map[ErrorClass]time.Duration{
		ClassRateLimit:   2000 * time.Millisecond,
		ClassServer:      5000 * time.Millisecond,
		ClassNetwork:     1000 * time.Millisecond,
		ClassCircuitOpen: 10000 * time.Millisecond,
		ClassDefault:     1000 * time.Millisecond,
	}

	for class, base := range bases {
		prev := time.Duration(0)
		for attempt := 0; attempt < 8; attempt++ {
			d := b.DelayFor(class, attempt)
			assert.GreaterOrEqual(t, d, base, "class %s attempt %d", class, attempt)
			// jitter adds at most 10% on top of the capped delay
			maxWithJitter := float64(defaultMaxDelay) * 1.1
			assert.LessOrEqual(t, d, time.Duration(maxWithJitter))
			// non-decreasing in the attempt number, modulo jitter
			assert.GreaterOrEqual(t, d, time.Duration(float64(prev)/1.1))
			prev = d
		}
	}
}

func TestBackoff_RetriesThenPropagatesOriginalError(t *testing.T) {
	b := NewBackoff(zap.NewNop())
	b.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	err := b.ExecuteWithBackoff(context.Background(), "op", 2, func(ctx context.Context) error {
		calls++
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls) // initial try + 2 retries
}

func TestBackoff_SuccessResetsAttemptCounter(t *testing.T) {
	b := NewBackoff(zap.NewNop())
	b.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	err := b.ExecuteWithBackoff(context.Background(), "op", 3, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)

	b.mu.Lock()
	_, tracked := b.attempts["op"]
	b.mu.Unlock()
	assert.False(t, tracked)
}

func TestBackoff_CircuitOpenNotRetried(t *testing.T) {
	b := NewBackoff(zap.NewNop())
	b.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	err := b.ExecuteWithBackoff(context.Background(), "op", 5, func(ctx context.Context) error {
		calls++
		return domain.ErrCircuitOpen
	})
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestBackoff_ContextCancelStopsRetry(t *testing.T) {
	b := NewBackoff(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.ExecuteWithBackoff(ctx, "op", 3, func(ctx context.Context) error {
		return errBoom
	})
	require.ErrorIs(t, err, context.Canceled)
}
