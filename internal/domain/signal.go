package domain

import "github.com/shopspring/decimal"

// Direction of a trading signal.
type Direction int

const (
	DirectionBuy Direction = iota
	DirectionSell
)

func (d Direction) String() string {
	if d == DirectionSell {
		return "sell"
	}
	return "buy"
}

// Regime is the broad market condition used to bias sizing and cash
// allocation.
type Regime int

const (
	RegimeNeutral Regime = iota
	RegimeBull
	RegimeBear
	RegimeSideways
)

func (r Regime) String() string {
	switch r {
	case RegimeBull:
		return "bull"
	case RegimeBear:
		return "bear"
	case RegimeSideways:
		return "sideways"
	}
	return "neutral"
}

// Signal is a scored trade recommendation for one symbol. Score runs
// 0..10, Confidence 0..1.
type Signal struct {
	Symbol     string
	Direction  Direction
	Score      float64
	Confidence float64
	Price      decimal.Decimal
	Volume     decimal.Decimal
	Reasons    []string
}
