package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mkorolev/coindeck/internal/domain"
	"github.com/mkorolev/coindeck/internal/services/indicators"
	"github.com/mkorolev/coindeck/internal/services/resilience"
)

// TierConfig is the polling policy of one priority tier.
type TierConfig struct {
	Interval time.Duration
	Retries  int
}

// Config tunes the data orchestrator.
type Config struct {
	// CriticalSymbols is the fixed core set polled at the fastest
	// cadence.
	CriticalSymbols []string
	Critical        TierConfig
	Important       TierConfig
	Background      TierConfig
	// OptimizeInterval is how often health is reassessed and
	// intervals retuned.
	OptimizeInterval time.Duration
	// MaxInterval caps scaled tier intervals.
	MaxInterval time.Duration
}

// DefaultConfig returns the production polling policy.
func DefaultConfig() Config {
	return Config{
		Critical:         TierConfig{Interval: 10 * time.Second, Retries: 3},
		Important:        TierConfig{Interval: 30 * time.Second, Retries: 2},
		Background:       TierConfig{Interval: 120 * time.Second, Retries: 1},
		OptimizeInterval: 5 * time.Minute,
		MaxInterval:      5 * time.Minute,
	}
}

// Snapshot is the read-only view handed to subscribers.
type Snapshot struct {
	Prices       map[string]domain.PriceEntry
	Markets      map[string]domain.MarketEntry
	Timestamp    time.Time
	SystemHealth string
}

type subscriber struct {
	id    string
	types map[DataType]bool
	fn    func(Snapshot)
}

// Orchestrator owns the price and market caches, partitions tracked
// symbols into priority tiers, runs per-tier polling loops through the
// resilience components, and fans out change notifications. It is the
// single writer of both caches.
type Orchestrator struct {
	cfg     Config
	feed    Feed
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
	backoff *resilience.Backoff
	health  *resilience.HealthMonitor
	history *History
	logger  *zap.Logger

	mu       sync.RWMutex
	prices   map[string]domain.PriceEntry
	markets  map[string]domain.MarketEntry
	tracked  []string
	scale    float64
	strategy resilience.Strategy
	subs     []*subscriber
	started  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator wires the orchestrator with its resilience set.
func NewOrchestrator(cfg Config, feed Feed, limiter *resilience.RateLimiter, breaker *resilience.CircuitBreaker, bo *resilience.Backoff, health *resilience.HealthMonitor, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Critical.Interval == 0 {
		def := DefaultConfig()
		def.CriticalSymbols = cfg.CriticalSymbols
		cfg = def
	}
	return &Orchestrator{
		cfg:      cfg,
		feed:     feed,
		limiter:  limiter,
		breaker:  breaker,
		backoff:  bo,
		health:   health,
		history:  NewHistory(),
		logger:   logger,
		prices:   make(map[string]domain.PriceEntry),
		markets:  make(map[string]domain.MarketEntry),
		scale:    1.0,
		strategy: resilience.RecommendedStrategy(resilience.StatusHealthy),
	}
}

// Initialize partitions symbols into tiers: the configured core set is
// critical, the given user-tracked symbols are important, everything
// else is background and only refreshed through the market catalogue.
func (o *Orchestrator) Initialize(tracked []string) {
	critical := make(map[string]bool, len(o.cfg.CriticalSymbols))
	for _, s := range o.cfg.CriticalSymbols {
		critical[s] = true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.tracked = o.tracked[:0]
	for _, s := range tracked {
		if !critical[s] {
			o.tracked = append(o.tracked, s)
		}
	}
}

// Start launches the tier polling loops and the periodic performance
// optimizer. It returns an error when called twice.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	ctx, o.cancel = context.WithCancel(ctx)

	for _, tier := range []domain.Tier{domain.TierCritical, domain.TierImportant, domain.TierBackground} {
		tier := tier
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runTierLoop(ctx, tier)
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runOptimizeLoop(ctx)
	}()

	o.logger.Info("data orchestrator started",
		zap.Strings("critical", o.cfg.CriticalSymbols),
		zap.Int("tracked", len(o.tierSymbols(domain.TierImportant))))
	return nil
}

// Stop cancels every polling loop and waits for them to exit. Late
// results from in-flight fetches are discarded.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.started = false
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
	o.logger.Info("data orchestrator stopped")
}

func (o *Orchestrator) runTierLoop(ctx context.Context, tier domain.Tier) {
	o.RefreshTier(ctx, tier)
	for {
		timer := time.NewTimer(o.tierInterval(tier))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			o.RefreshTier(ctx, tier)
		}
	}
}

func (o *Orchestrator) runOptimizeLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.OptimizeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.OptimizePerformance()
		}
	}
}

func (o *Orchestrator) tierSymbols(tier domain.Tier) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch tier {
	case domain.TierCritical:
		out := make([]string, len(o.cfg.CriticalSymbols))
		copy(out, o.cfg.CriticalSymbols)
		return out
	case domain.TierImportant:
		out := make([]string, len(o.tracked))
		copy(out, o.tracked)
		return out
	}
	return nil
}

func priorityFor(tier domain.Tier) resilience.Priority {
	switch tier {
	case domain.TierCritical:
		return resilience.PriorityCritical
	case domain.TierImportant:
		return resilience.PriorityImportant
	}
	return resilience.PriorityBackground
}

func (o *Orchestrator) tierConfig(tier domain.Tier) TierConfig {
	switch tier {
	case domain.TierCritical:
		return o.cfg.Critical
	case domain.TierImportant:
		return o.cfg.Important
	}
	return o.cfg.Background
}

func (o *Orchestrator) tierInterval(tier domain.Tier) time.Duration {
	o.mu.RLock()
	scale := o.scale
	o.mu.RUnlock()

	interval := time.Duration(float64(o.tierConfig(tier).Interval) * scale)
	if interval > o.cfg.MaxInterval {
		interval = o.cfg.MaxInterval
	}
	return interval
}

// RefreshTier runs one update cycle for the tier. Resilience failures
// are absorbed here: the cycle is skipped, the last known cache entries
// stay in place, and subscribers are not notified.
func (o *Orchestrator) RefreshTier(ctx context.Context, tier domain.Tier) {
	if tier == domain.TierBackground {
		o.refreshMarkets(ctx)
		return
	}

	symbols := o.tierSymbols(tier)
	if len(symbols) == 0 {
		return
	}

	var ticks []domain.PriceTick
	err := o.smartCall(ctx, "tickers:"+tier.String(), priorityFor(tier), o.tierConfig(tier).Retries, func(ctx context.Context) error {
		fetched, ferr := o.feed.FetchTickerBatch(ctx, symbols)
		if ferr != nil {
			return ferr
		}
		ticks = fetched
		return nil
	})
	if err != nil {
		o.logger.Warn("tier update skipped, serving stale entries",
			zap.String("tier", tier.String()),
			zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := time.Now()
	staged := make(map[string]domain.PriceEntry, len(ticks))
	for _, tick := range ticks {
		o.history.Append(tick.Symbol, Sample{Price: tick.Price, Volume: tick.Volume24h, At: tick.Timestamp})
		staged[tick.Symbol] = domain.PriceEntry{
			Tick:       tick,
			Indicators: indicators.Compute(o.history.Closes(tick.Symbol)),
			Tier:       tier,
			UpdatedAt:  now,
		}
	}

	// Replace all cache entries for the batch before any subscriber
	// hears about it.
	o.mu.Lock()
	for symbol, entry := range staged {
		o.prices[symbol] = entry
	}
	o.mu.Unlock()

	o.notify(DataTypePrices)
}

func (o *Orchestrator) refreshMarkets(ctx context.Context) {
	var markets []domain.MarketInfo
	err := o.smartCall(ctx, "markets", resilience.PriorityBackground, o.cfg.Background.Retries, func(ctx context.Context) error {
		fetched, ferr := o.feed.FetchMarketList(ctx)
		if ferr != nil {
			return ferr
		}
		markets = fetched
		return nil
	})
	if err != nil {
		o.logger.Warn("market list update skipped, serving stale entries", zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := time.Now()
	staged := make(map[string]domain.MarketEntry, len(markets))
	for _, m := range markets {
		staged[m.Symbol] = domain.MarketEntry{Info: m, UpdatedAt: now}
	}

	o.mu.Lock()
	o.markets = staged
	o.mu.Unlock()

	o.notify(DataTypeMarkets)
}

// smartCall composes the resilience stack around a fetch: circuit
// breaker outermost, retry with backoff inside it, rate limiter
// admission in front of the actual call. The outcome is recorded into
// both the rate limiter and the health monitor.
func (o *Orchestrator) smartCall(ctx context.Context, opID string, priority resilience.Priority, retries int, fetch func(ctx context.Context) error) error {
	start := time.Now()
	err := o.breaker.Execute(ctx, func(ctx context.Context) error {
		return o.backoff.ExecuteWithBackoff(ctx, opID, retries, func(ctx context.Context) error {
			if !o.limiter.CanCall(priority) {
				return &domain.RateLimitError{
					Priority:   priority.String(),
					RetryAfter: o.limiter.MinInterval(),
				}
			}
			return fetch(ctx)
		})
	})
	latency := time.Since(start)
	o.limiter.RecordCall(err == nil, latency)
	o.health.Record(err == nil, latency)
	return err
}

// OptimizePerformance reassesses system health, retunes the rate
// limiter budget and adopts the polling strategy recommended for the
// verdict. Tier intervals stretch by the ratio of the recommended
// interval to the healthy baseline.
func (o *Orchestrator) OptimizePerformance() {
	status := o.health.AssessHealth()
	o.limiter.AdjustLimits()

	strategy := resilience.RecommendedStrategy(status)
	baseline := resilience.RecommendedStrategy(resilience.StatusHealthy)
	scale := float64(strategy.Interval) / float64(baseline.Interval)

	o.mu.Lock()
	o.scale = scale
	o.strategy = strategy
	o.mu.Unlock()

	o.logger.Info("performance optimized",
		zap.String("health", status.String()),
		zap.Float64("interval_scale", scale),
		zap.Int("batch_size", strategy.BatchSize),
		zap.Int("concurrency", strategy.Concurrency))
}

// Subscribe registers a callback for the given data types and returns
// an idempotent unsubscribe function. Callbacks run synchronously in
// registration order after a tier batch replaces its cache entries.
func (o *Orchestrator) Subscribe(id string, types []DataType, fn func(Snapshot)) func() {
	interested := make(map[DataType]bool, len(types))
	for _, t := range types {
		interested[t] = true
	}

	o.mu.Lock()
	o.subs = append(o.subs, &subscriber{id: id, types: interested, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (o *Orchestrator) notify(dt DataType) {
	snap := o.SnapshotView()

	o.mu.RLock()
	targets := make([]*subscriber, 0, len(o.subs))
	for _, s := range o.subs {
		if s.types[dt] {
			targets = append(targets, s)
		}
	}
	o.mu.RUnlock()

	for _, s := range targets {
		s.fn(snap)
	}
}

// SnapshotView returns a copy of both caches plus the current health
// verdict.
func (o *Orchestrator) SnapshotView() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	prices := make(map[string]domain.PriceEntry, len(o.prices))
	for k, v := range o.prices {
		prices[k] = v
	}
	markets := make(map[string]domain.MarketEntry, len(o.markets))
	for k, v := range o.markets {
		markets[k] = v
	}
	return Snapshot{
		Prices:       prices,
		Markets:      markets,
		Timestamp:    time.Now(),
		SystemHealth: o.health.AssessHealth().String(),
	}
}

// GetPrice returns the cached entry for a symbol. The second result is
// false when there is no entry or the entry is stale.
func (o *Orchestrator) GetPrice(symbol string) (domain.PriceEntry, bool) {
	o.mu.RLock()
	entry, ok := o.prices[symbol]
	o.mu.RUnlock()
	if !ok || !entry.Fresh(time.Now()) {
		return domain.PriceEntry{}, false
	}
	return entry, true
}

// GetMarket returns the cached market record for a symbol, observing
// the same staleness rule as GetPrice.
func (o *Orchestrator) GetMarket(symbol string) (domain.MarketEntry, bool) {
	o.mu.RLock()
	entry, ok := o.markets[symbol]
	o.mu.RUnlock()
	if !ok || !entry.Fresh(time.Now()) {
		return domain.MarketEntry{}, false
	}
	return entry, true
}

// MarketRank returns the catalogue rank for a symbol, or zero when
// unknown.
func (o *Orchestrator) MarketRank(symbol string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if entry, ok := o.markets[symbol]; ok {
		return entry.Info.Rank
	}
	return 0
}

// TierStatus describes one tier's current polling posture.
type TierStatus struct {
	Symbols  int           `json:"symbols"`
	Interval time.Duration `json:"interval"`
	Retries  int           `json:"retries"`
}

// Status is the observability snapshot of the whole ingestion plane.
type Status struct {
	RateLimiter    resilience.RateLimiterStatus    `json:"rateLimiter"`
	CircuitBreaker resilience.CircuitBreakerStatus `json:"circuitBreaker"`
	Health         resilience.HealthStats          `json:"health"`
	HealthStatus   string                          `json:"healthStatus"`
	Tiers          map[string]TierStatus           `json:"tiers"`
	IntervalScale  float64                         `json:"intervalScale"`
	Strategy       resilience.Strategy             `json:"strategy"`
}

// GetStatus reports the state of every resilience component and tier.
func (o *Orchestrator) GetStatus() Status {
	o.mu.RLock()
	scale := o.scale
	strategy := o.strategy
	o.mu.RUnlock()

	tiers := make(map[string]TierStatus, 3)
	for _, tier := range []domain.Tier{domain.TierCritical, domain.TierImportant, domain.TierBackground} {
		cfg := o.tierConfig(tier)
		tiers[tier.String()] = TierStatus{
			Symbols:  len(o.tierSymbols(tier)),
			Interval: o.tierInterval(tier),
			Retries:  cfg.Retries,
		}
	}
	return Status{
		RateLimiter:    o.limiter.Status(),
		CircuitBreaker: o.breaker.Status(),
		Health:         o.health.Stats(),
		HealthStatus:   o.health.AssessHealth().String(),
		Tiers:          tiers,
		IntervalScale:  scale,
		Strategy:       strategy,
	}
}
