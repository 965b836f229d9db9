package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PositionTier classifies a position by the market-cap rank of its
// symbol.
type PositionTier int

const (
	PositionTier1 PositionTier = iota + 1
	PositionTier2
	PositionTier3
)

func (t PositionTier) String() string {
	switch t {
	case PositionTier1:
		return "TIER1"
	case PositionTier2:
		return "TIER2"
	}
	return "TIER3"
}

// PositionTierForRank maps a market-cap rank to a position tier.
// Unknown ranks (zero or negative) fall into the lowest tier.
func PositionTierForRank(rank int) PositionTier {
	switch {
	case rank >= 1 && rank <= 10:
		return PositionTier1
	case rank > 10 && rank <= 50:
		return PositionTier2
	}
	return PositionTier3
}

// Position is an open holding in the simulated portfolio. It is created
// on an executed buy, mutated on adds and partial reduces, and removed
// when quantity reaches zero.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	EntryScore   float64         `json:"entryScore"`
	Tier         PositionTier    `json:"tier"`
	OpenedAt     time.Time       `json:"openedAt"`
	RealizedPnL  decimal.Decimal `json:"realizedPnl"`
}

// NewPosition constructs a position opened by an executed buy.
func NewPosition(symbol string, quantity, entryPrice decimal.Decimal, score float64, tier PositionTier, openedAt time.Time) (*Position, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position quantity must be greater than zero")
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}
	return &Position{
		Symbol:       symbol,
		Quantity:     quantity,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		EntryScore:   score,
		Tier:         tier,
		OpenedAt:     openedAt,
		RealizedPnL:  decimal.Zero,
	}, nil
}

// MarketValue returns quantity times the current price.
func (p *Position) MarketValue() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Quantity.Mul(p.CurrentPrice)
}

// UnrealizedPnL returns the open profit or loss at the current price.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.EntryPrice).Mul(p.Quantity)
}

// ProfitPercent returns the fractional gain of the position, e.g. -0.05
// for a 5% loss.
func (p *Position) ProfitPercent() float64 {
	if p == nil || p.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	pct, _ := p.CurrentPrice.Sub(p.EntryPrice).Div(p.EntryPrice).Float64()
	return pct
}

// HoldingDuration returns how long the position has been open.
func (p *Position) HoldingDuration(now time.Time) time.Duration {
	if p == nil {
		return 0
	}
	return now.Sub(p.OpenedAt)
}
