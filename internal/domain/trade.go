package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction is the kind of an executed trade.
type TradeAction int

const (
	TradeBuy TradeAction = iota
	TradeSell
)

func (a TradeAction) String() string {
	if a == TradeSell {
		return "SELL"
	}
	return "BUY"
}

// Trade is an immutable record of one execution. The trade ledger is
// append-only.
type Trade struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Action   TradeAction     `json:"action"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
	Fee      decimal.Decimal `json:"fee"`
	// ProfitRate is the realized fractional return of a sell relative
	// to the average entry price. Zero for buys.
	ProfitRate float64   `json:"profitRate"`
	Timestamp  time.Time `json:"timestamp"`
}

// String returns a human-readable representation.
func (t Trade) String() string {
	return fmt.Sprintf("%s %s qty=%s price=%s amount=%s fee=%s",
		t.Action, t.Symbol, t.Quantity.String(), t.Price.String(), t.Amount.String(), t.Fee.String())
}
