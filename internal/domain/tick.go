package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StaleAfter is how long a cached entry stays servable after its last
// successful refresh.
const StaleAfter = 5 * time.Minute

// Tier determines how aggressively a symbol's data is refreshed.
type Tier int

const (
	TierCritical Tier = iota
	TierImportant
	TierBackground
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierImportant:
		return "important"
	case TierBackground:
		return "background"
	}
	return "unknown"
}

// PriceTick is one observed market data point for a symbol.
type PriceTick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change24h"`
	Volume24h decimal.Decimal `json:"volume24h"`
	Timestamp time.Time       `json:"timestamp"`
}

// IndicatorSet holds the technical indicators derived from a symbol's
// recent close history.
type IndicatorSet struct {
	RSI14          decimal.Decimal `json:"rsi14"`
	MACD           decimal.Decimal `json:"macd"`
	MACDSignal     decimal.Decimal `json:"macdSignal"`
	MACDHistogram  decimal.Decimal `json:"macdHistogram"`
	MA20           decimal.Decimal `json:"ma20"`
	MA60           decimal.Decimal `json:"ma60"`
	BollingerUpper decimal.Decimal `json:"bollingerUpper"`
	BollingerMid   decimal.Decimal `json:"bollingerMid"`
	BollingerLower decimal.Decimal `json:"bollingerLower"`
}

// PriceEntry is a cached tick with its derived indicators.
type PriceEntry struct {
	Tick       PriceTick    `json:"tick"`
	Indicators IndicatorSet `json:"indicators"`
	Tier       Tier         `json:"tier"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// Fresh reports whether the entry is within the staleness window.
func (e PriceEntry) Fresh(now time.Time) bool {
	return now.Sub(e.UpdatedAt) < StaleAfter
}

// MarketInfo describes a listed market. Rank orders markets by size,
// lower is larger.
type MarketInfo struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"displayName"`
	Rank        int    `json:"rank"`
}

// MarketEntry is a cached market listing.
type MarketEntry struct {
	Info      MarketInfo `json:"info"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (e MarketEntry) Fresh(now time.Time) bool {
	return now.Sub(e.UpdatedAt) < StaleAfter
}
