package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Performance is the accounting snapshot recomputed after every
// executed trade and price update.
type Performance struct {
	TotalReturn  float64 `json:"totalReturn"`
	WinRate      float64 `json:"winRate"`
	MaxDrawdown  float64 `json:"maxDrawdown"`
	ProfitFactor float64 `json:"profitFactor"`
	Sharpe       float64 `json:"sharpe"`
}

// PortfolioSnapshot is a deep copy of the simulated portfolio. Total
// value always equals cash plus the sum of position market values at
// the moment the snapshot was taken.
type PortfolioSnapshot struct {
	Cash          decimal.Decimal `json:"cash"`
	Positions     []Position      `json:"positions"`
	Trades        []Trade         `json:"trades"`
	Performance   Performance     `json:"performance"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	HighWaterMark decimal.Decimal `json:"highWaterMark"`
	Drawdown      float64         `json:"drawdown"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

// Position returns the snapshot's position for the symbol, or nil.
func (s *PortfolioSnapshot) Position(symbol string) *Position {
	for i := range s.Positions {
		if s.Positions[i].Symbol == symbol {
			return &s.Positions[i]
		}
	}
	return nil
}

// CashRatio returns cash as a fraction of total portfolio value.
func (s *PortfolioSnapshot) CashRatio() float64 {
	if s.TotalValue.LessThanOrEqual(decimal.Zero) {
		return 1
	}
	r, _ := s.Cash.Div(s.TotalValue).Float64()
	return r
}
