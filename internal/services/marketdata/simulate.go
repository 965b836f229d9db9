package marketdata

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mkorolev/coindeck/internal/domain"
)

// SimulatedFeed is a deterministic in-memory feed for simulation runs
// and tests. Prices follow a bounded random walk seeded at
// construction.
type SimulatedFeed struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	markets []domain.MarketInfo
	rnd     *rand.Rand
	// FailFetches makes every call fail while set, to exercise the
	// serve-stale-on-error path.
	FailFetches bool
}

// NewSimulatedFeed creates a feed seeded with the given base prices.
// Market ranks follow the lexicographic symbol order so repeated runs
// see identical tier assignments.
func NewSimulatedFeed(basePrices map[string]decimal.Decimal, seed int64) *SimulatedFeed {
	symbols := make([]string, 0, len(basePrices))
	for symbol := range basePrices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	prices := make(map[string]decimal.Decimal, len(basePrices))
	markets := make([]domain.MarketInfo, 0, len(basePrices))
	for i, symbol := range symbols {
		prices[symbol] = basePrices[symbol]
		markets = append(markets, domain.MarketInfo{
			Symbol:      symbol,
			DisplayName: symbol,
			Rank:        i + 1,
		})
	}
	return &SimulatedFeed{
		prices:  prices,
		markets: markets,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// SetPrice pins a symbol's price, overriding the random walk.
func (f *SimulatedFeed) SetPrice(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

// FetchTickerBatch returns the current simulated ticks, stepping each
// price by up to 0.5% per call.
func (f *SimulatedFeed) FetchTickerBatch(ctx context.Context, symbols []string) ([]domain.PriceTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailFetches {
		return nil, errors.New("simulated feed failure")
	}

	now := time.Now()
	ticks := make([]domain.PriceTick, 0, len(symbols))
	for _, symbol := range symbols {
		price, ok := f.prices[symbol]
		if !ok {
			continue
		}
		step := decimal.NewFromFloat((f.rnd.Float64() - 0.5) * 0.01)
		price = price.Mul(decimal.NewFromInt(1).Add(step))
		f.prices[symbol] = price
		ticks = append(ticks, domain.PriceTick{
			Symbol:    symbol,
			Price:     price,
			Change24h: step.Mul(decimal.NewFromInt(100)),
			Volume24h: price.Mul(decimal.NewFromInt(1000)),
			Timestamp: now,
		})
	}
	return ticks, nil
}

// FetchMarketList returns the simulated market catalogue.
func (f *SimulatedFeed) FetchMarketList(ctx context.Context) ([]domain.MarketInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailFetches {
		return nil, errors.New("simulated feed failure")
	}
	out := make([]domain.MarketInfo, len(f.markets))
	copy(out, f.markets)
	return out, nil
}
