package resilience

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/mkorolev/coindeck/internal/domain"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrorClass buckets failures by the retry delay they deserve.
type ErrorClass int

const (
	ClassDefault ErrorClass = iota
	ClassRateLimit
	ClassServer
	ClassNetwork
	ClassCircuitOpen
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRateLimit:
		return "rate_limit"
	case ClassServer:
		return "server"
	case ClassNetwork:
		return "network"
	case ClassCircuitOpen:
		return "circuit_open"
	}
	return "default"
}

// Classify maps an error to its backoff class.
func Classify(err error) ErrorClass {
	if errors.Is(err, domain.ErrCircuitOpen) {
		return ClassCircuitOpen
	}
	var rle *domain.RateLimitError
	if errors.As(err, &rle) {
		return ClassRateLimit
	}
	var se *domain.ServerError
	if errors.As(err, &se) {
		return ClassServer
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ClassNetwork
	}
	return ClassDefault
}

const defaultMaxDelay = 30 * time.Second

// Backoff retries operations with a per-error-class exponential delay
// curve plus bounded jitter. Attempt counters are tracked per operation
// id and reset on success.
type Backoff struct {
	mu       sync.Mutex
	curves   map[ErrorClass]*backoff.Backoff
	attempts map[string]int
	rnd      *rand.Rand
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewBackoff creates a backoff strategy with per-class base delays.
func NewBackoff(logger *zap.Logger) *Backoff {
	if logger == nil {
		logger = zap.NewNop()
	}
	curve := func(base time.Duration) *backoff.Backoff {
		return &backoff.Backoff{Min: base, Max: defaultMaxDelay, Factor: 2, Jitter: false}
	}
	return &Backoff{
		curves: map[ErrorClass]*backoff.Backoff{
			ClassRateLimit:   curve(2000 * time.Millisecond),
			ClassServer:      curve(5000 * time.Millisecond),
			ClassNetwork:     curve(1000 * time.Millisecond),
			ClassCircuitOpen: curve(10000 * time.Millisecond),
			ClassDefault:     curve(1000 * time.Millisecond),
		},
		attempts: make(map[string]int),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DelayFor computes the retry delay for the given class and attempt
// number: min(maxDelay, base * 2^attempt) plus up to 10% random jitter.
func (b *Backoff) DelayFor(class ErrorClass, attempt int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delayForLocked(class, attempt)
}

func (b *Backoff) delayForLocked(class ErrorClass, attempt int) time.Duration {
	curve, ok := b.curves[class]
	if !ok {
		curve = b.curves[ClassDefault]
	}
	base := curve.ForAttempt(float64(attempt))
	jitter := time.Duration(b.rnd.Float64() * 0.1 * float64(base))
	return base + jitter
}

// ExecuteWithBackoff retries op up to maxRetries times. Circuit-open
// errors are not retried: the breaker already rejects calls for the
// rest of its cooldown window. On final failure the original error
// propagates unchanged.
func (b *Backoff) ExecuteWithBackoff(ctx context.Context, opID string, maxRetries int, op func(ctx context.Context) error) error {
	for retry := 0; ; retry++ {
		err := op(ctx)
		if err == nil {
			b.mu.Lock()
			delete(b.attempts, opID)
			b.mu.Unlock()
			return nil
		}

		class := Classify(err)
		if class == ClassCircuitOpen {
			return err
		}
		if retry >= maxRetries {
			return err
		}

		b.mu.Lock()
		attempt := b.attempts[opID]
		b.attempts[opID]++
		delay := b.delayForLocked(class, attempt)
		b.mu.Unlock()

		b.logger.Debug("retrying operation",
			zap.String("op", opID),
			zap.String("class", class.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if serr := b.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}
