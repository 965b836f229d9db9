// Package trading contains the simulated trading engine and the policy
// components feeding it: position sizing, cash management, and dynamic
// position management.
package trading

import (
	"github.com/shopspring/decimal"

	"github.com/mkorolev/coindeck/internal/domain"
)

// SizerConfig tunes position sizing.
type SizerConfig struct {
	// BaseFraction of total portfolio value a new position starts
	// from.
	BaseFraction float64
	// MaxFraction caps the final amount as a fraction of total value.
	MaxFraction float64
	// MinAmount is the absolute floor of a sized position.
	MinAmount decimal.Decimal
	// CashCapFraction limits the amount to a share of available cash.
	CashCapFraction float64
}

// DefaultSizerConfig returns the production sizing coefficients.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		BaseFraction:    0.15,
		MaxFraction:     0.25,
		MinAmount:       decimal.NewFromInt(10000),
		CashCapFraction: 0.90,
	}
}

// Sizer computes a target notional for a new or adjusted position from
// signal strength, market regime, confidence and diversification.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a sizer.
func NewSizer(cfg SizerConfig) *Sizer {
	if cfg.BaseFraction == 0 {
		cfg = DefaultSizerConfig()
	}
	return &Sizer{cfg: cfg}
}

func strengthFactor(score float64) float64 {
	switch {
	case score >= 9.0:
		return 1.5
	case score >= 8.5:
		return 1.3
	case score >= 8.0:
		return 1.15
	case score >= 7.5:
		return 1.0
	case score >= 7.0:
		return 0.8
	}
	return 0.6
}

func regimeFactor(regime domain.Regime) float64 {
	switch regime {
	case domain.RegimeBull:
		return 1.2
	case domain.RegimeBear:
		return 0.7
	case domain.RegimeSideways:
		return 0.9
	}
	return 1.0
}

func confidenceFactor(confidence float64) float64 {
	switch {
	case confidence >= 0.8:
		return 1.2
	case confidence >= 0.6:
		return 1.0
	case confidence >= 0.4:
		return 0.9
	}
	return 0.8
}

func diversificationFactor(openPositions int) float64 {
	switch {
	case openPositions <= 2:
		return 1.1
	case openPositions == 3:
		return 1.0
	case openPositions == 4:
		return 0.95
	case openPositions == 5:
		return 0.9
	case openPositions == 6:
		return 0.85
	}
	return 0.8
}

// Size returns the target notional for entering sig given the current
// portfolio state and market regime. The result is capped by
// MaxFraction of total value, floored at MinAmount, and never exceeds
// CashCapFraction of available cash.
func (s *Sizer) Size(sig domain.Signal, totalValue, availableCash decimal.Decimal, openPositions int, regime domain.Regime) decimal.Decimal {
	if totalValue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	factor := s.cfg.BaseFraction *
		strengthFactor(sig.Score) *
		regimeFactor(regime) *
		confidenceFactor(sig.Confidence) *
		diversificationFactor(openPositions)

	amount := totalValue.Mul(decimal.NewFromFloat(factor))

	cap := totalValue.Mul(decimal.NewFromFloat(s.cfg.MaxFraction))
	if amount.GreaterThan(cap) {
		amount = cap
	}
	if amount.LessThan(s.cfg.MinAmount) {
		amount = s.cfg.MinAmount
	}

	cashCap := availableCash.Mul(decimal.NewFromFloat(s.cfg.CashCapFraction))
	if amount.GreaterThan(cashCap) {
		amount = cashCap
	}
	return amount
}
