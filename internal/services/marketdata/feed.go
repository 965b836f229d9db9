// Package marketdata pulls normalized ticker and market records from an
// exchange under adaptive resilience policies, owns the price and
// market caches, and fans out change notifications to subscribers.
package marketdata

import (
	"context"

	"github.com/mkorolev/coindeck/internal/domain"
)

// DataType names a category of cached data subscribers can register
// for.
type DataType string

const (
	DataTypePrices  DataType = "prices"
	DataTypeMarkets DataType = "markets"
)

// Feed fetches normalized market records from an exchange. The wire
// format behind it is not load-bearing; only the record shapes are.
type Feed interface {
	// FetchTickerBatch returns current ticks for the given symbols.
	FetchTickerBatch(ctx context.Context, symbols []string) ([]domain.PriceTick, error)
	// FetchMarketList returns the tradable market catalogue ordered by
	// rank.
	FetchMarketList(ctx context.Context) ([]domain.MarketInfo, error)
}
