package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkorolev/coindeck/internal/domain"
	"github.com/mkorolev/coindeck/internal/services/resilience"
)

func newTestOrchestrator(t *testing.T, feed Feed) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CriticalSymbols = []string{"BTCUSDT", "ETHUSDT"}
	// no retries in tests: failed cycles skip immediately instead of
	// sleeping through backoff delays
	cfg.Critical.Retries = 0
	cfg.Important.Retries = 0
	cfg.Background.Retries = 0

	bo := resilience.NewBackoff(zap.NewNop())
	o := NewOrchestrator(cfg, feed,
		resilience.NewRateLimiter(resilience.DefaultRateLimiterConfig(), zap.NewNop()),
		resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(), zap.NewNop()),
		bo,
		resilience.NewHealthMonitor(),
		zap.NewNop())
	return o
}

func newTestFeed() *SimulatedFeed {
	return NewSimulatedFeed(map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(50000),
		"ETHUSDT": decimal.NewFromInt(3000),
		"SOLUSDT": decimal.NewFromInt(150),
	}, 42)
}

func TestOrchestrator_RefreshUpdatesCacheAndNotifies(t *testing.T) {
	feed := newTestFeed()
	o := newTestOrchestrator(t, feed)
	o.Initialize([]string{"SOLUSDT"})

	var got []Snapshot
	o.Subscribe("ui", []DataType{DataTypePrices}, func(s Snapshot) {
		got = append(got, s)
	})

	o.RefreshTier(context.Background(), domain.TierCritical)

	require.Len(t, got, 1)
	entry, ok := o.GetPrice("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, domain.TierCritical, entry.Tier)
	assert.True(t, entry.Tick.Price.GreaterThan(decimal.Zero))

	// the notification snapshot already contained the replaced entries
	_, inSnap := got[0].Prices["BTCUSDT"]
	assert.True(t, inSnap)

	// important tier covers the user-tracked symbol
	time.Sleep(o.limiter.MinInterval())
	o.RefreshTier(context.Background(), domain.TierImportant)
	entry, ok = o.GetPrice("SOLUSDT")
	require.True(t, ok)
	assert.Equal(t, domain.TierImportant, entry.Tier)
}

func TestOrchestrator_ServesStaleOnFetchFailure(t *testing.T) {
	feed := newTestFeed()
	o := newTestOrchestrator(t, feed)
	o.Initialize(nil)

	o.RefreshTier(context.Background(), domain.TierCritical)
	before, ok := o.GetPrice("BTCUSDT")
	require.True(t, ok)

	notified := 0
	o.Subscribe("ui", []DataType{DataTypePrices}, func(Snapshot) { notified++ })

	feed.FailFetches = true
	o.RefreshTier(context.Background(), domain.TierCritical)

	after, ok := o.GetPrice("BTCUSDT")
	require.True(t, ok)
	assert.True(t, after.Tick.Price.Equal(before.Tick.Price))
	assert.Equal(t, after.UpdatedAt, before.UpdatedAt)
	// failed cycles never reach subscribers
	assert.Equal(t, 0, notified)
}

func TestOrchestrator_BackgroundTierRefreshesMarkets(t *testing.T) {
	feed := newTestFeed()
	o := newTestOrchestrator(t, feed)
	o.Initialize(nil)

	notified := 0
	o.Subscribe("ui", []DataType{DataTypeMarkets}, func(Snapshot) { notified++ })

	o.RefreshTier(context.Background(), domain.TierBackground)

	m, ok := o.GetMarket("SOLUSDT")
	require.True(t, ok)
	assert.Equal(t, "SOLUSDT", m.Info.Symbol)
	assert.Greater(t, m.Info.Rank, 0)
	assert.Equal(t, 1, notified)
}

func TestOrchestrator_UnsubscribeIsIdempotent(t *testing.T) {
	feed := newTestFeed()
	o := newTestOrchestrator(t, feed)
	o.Initialize(nil)

	calls := 0
	unsub := o.Subscribe("ui", []DataType{DataTypePrices}, func(Snapshot) { calls++ })
	o.Subscribe("other", []DataType{DataTypePrices}, func(Snapshot) {})

	unsub()
	unsub() // second call must be side-effect-free

	o.RefreshTier(context.Background(), domain.TierCritical)
	assert.Equal(t, 0, calls)
	assert.Len(t, o.subs, 1)
}

func TestOrchestrator_SubscriberTypeFiltering(t *testing.T) {
	feed := newTestFeed()
	o := newTestOrchestrator(t, feed)
	o.Initialize(nil)

	priceCalls, marketCalls := 0, 0
	o.Subscribe("p", []DataType{DataTypePrices}, func(Snapshot) { priceCalls++ })
	o.Subscribe("m", []DataType{DataTypeMarkets}, func(Snapshot) { marketCalls++ })

	o.RefreshTier(context.Background(), domain.TierCritical)
	time.Sleep(o.limiter.MinInterval())
	o.RefreshTier(context.Background(), domain.TierBackground)

	assert.Equal(t, 1, priceCalls)
	assert.Equal(t, 1, marketCalls)
}

func TestOrchestrator_OptimizeScalesIntervals(t *testing.T) {
	feed := newTestFeed()
	o := newTestOrchestrator(t, feed)

	base := o.tierInterval(domain.TierCritical)

	// poison the health history so the verdict turns critical
	for i := 0; i < 50; i++ {
		o.health.Record(false, 6*time.Second)
	}
	o.OptimizePerformance()

	// critical verdict recommends 60s polling against the healthy 10s
	// baseline, so every tier interval stretches sixfold
	scaled := o.tierInterval(domain.TierCritical)
	assert.Equal(t, time.Duration(float64(base)*6.0), scaled)

	// background tier stretches past the cap and gets clamped
	assert.Equal(t, o.cfg.MaxInterval, o.tierInterval(domain.TierBackground))
}

func TestOrchestrator_StatusCarriesRecommendedStrategy(t *testing.T) {
	feed := newTestFeed()
	o := newTestOrchestrator(t, feed)

	st := o.GetStatus()
	assert.Equal(t, resilience.RecommendedStrategy(resilience.StatusHealthy), st.Strategy)

	for i := 0; i < 50; i++ {
		o.health.Record(false, 6*time.Second)
	}
	o.OptimizePerformance()

	st = o.GetStatus()
	assert.Equal(t, resilience.RecommendedStrategy(resilience.StatusCritical), st.Strategy)
	assert.Equal(t, 6.0, st.IntervalScale)
}

func TestOrchestrator_StartStop(t *testing.T) {
	feed := newTestFeed()
	o := newTestOrchestrator(t, feed)
	o.Initialize(nil)
	// fast polling so a cycle that lost the admission race still
	// completes within the test window
	o.cfg.Critical.Interval = 200 * time.Millisecond

	require.NoError(t, o.Start(context.Background()))
	require.Error(t, o.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, ok := o.GetPrice("BTCUSDT")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	o.Stop()
}

func TestOrchestrator_StatusReportsTiers(t *testing.T) {
	feed := newTestFeed()
	o := newTestOrchestrator(t, feed)
	o.Initialize([]string{"SOLUSDT"})

	st := o.GetStatus()
	assert.Equal(t, 2, st.Tiers["critical"].Symbols)
	assert.Equal(t, 1, st.Tiers["important"].Symbols)
	assert.Equal(t, 3, st.Tiers["critical"].Retries)
	assert.Equal(t, "CLOSED", st.CircuitBreaker.State)
	assert.Equal(t, 1.0, st.IntervalScale)
}
