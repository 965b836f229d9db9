package trading

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkorolev/coindeck/internal/domain"
)

func TestOptimalCashRatioBase(t *testing.T) {
	c := NewCashManager(DefaultCashManagerConfig())
	ratio := c.CalculateOptimalCashRatio(domain.RegimeNeutral, PortfolioHealth{WinRate: 0.5}, MarketMetrics{Volatility: 0.4})
	assert.InDelta(t, 0.15, ratio, 1e-9)
}

func TestOptimalCashRatioBearUncertainClampsAtMax(t *testing.T) {
	c := NewCashManager(DefaultCashManagerConfig())
	health := PortfolioHealth{UnrealizedLossPct: -0.12, WinRate: 0.3, RecentPerformance: -0.10}
	metrics := MarketMetrics{Volatility: 0.8, Uncertain: true}

	ratio := c.CalculateOptimalCashRatio(domain.RegimeBear, health, metrics)
	assert.InDelta(t, 0.40, ratio, 1e-9)
}

func TestOptimalCashRatioBullLowVolClampsAtMin(t *testing.T) {
	c := NewCashManager(DefaultCashManagerConfig())
	health := PortfolioHealth{WinRate: 0.7}
	metrics := MarketMetrics{Volatility: 0.1}

	ratio := c.CalculateOptimalCashRatio(domain.RegimeBull, health, metrics)
	// 0.15 - 0.05 - 0.03 = 0.07, above the 0.05 floor
	assert.InDelta(t, 0.07, ratio, 1e-9)
}

func TestHandleCashImbalanceDeadBand(t *testing.T) {
	c := NewCashManager(DefaultCashManagerConfig())
	snap := domain.PortfolioSnapshot{TotalValue: decimal.NewFromInt(1_000_000)}

	actions := c.HandleCashImbalance(0.17, 0.15, snap)
	assert.Nil(t, actions)
}

func TestHandleCashImbalanceSurplusDeploys(t *testing.T) {
	c := NewCashManager(DefaultCashManagerConfig())
	snap := domain.PortfolioSnapshot{TotalValue: decimal.NewFromInt(1_000_000)}

	actions := c.HandleCashImbalance(0.35, 0.15, snap)
	require.Len(t, actions, 1)
	assert.Equal(t, CashIncreaseInvestment, actions[0].Kind)
	assert.Equal(t, "200000", actions[0].Amount.String())
}

func TestHandleCashImbalanceShortfallReducesWeakestFirst(t *testing.T) {
	c := NewCashManager(DefaultCashManagerConfig())
	c.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	opened := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	strong, err := domain.NewPosition("BTCUSDT", decimal.NewFromInt(100), decimal.NewFromInt(1000), 9.0, domain.PositionTier1, opened)
	require.NoError(t, err)
	strong.CurrentPrice = decimal.NewFromInt(1100)

	weak, err := domain.NewPosition("DOGEUSDT", decimal.NewFromInt(100), decimal.NewFromInt(1000), 6.0, domain.PositionTier3, opened)
	require.NoError(t, err)
	weak.CurrentPrice = decimal.NewFromInt(850)

	snap := domain.PortfolioSnapshot{
		TotalValue: decimal.NewFromInt(1_000_000),
		Positions:  []domain.Position{*strong, *weak},
	}

	actions := c.HandleCashImbalance(0.05, 0.20, snap)
	require.NotEmpty(t, actions)
	assert.Equal(t, CashReducePosition, actions[0].Kind)
	assert.Equal(t, "DOGEUSDT", actions[0].Symbol)
}

func TestHandleEmergencyScenarios(t *testing.T) {
	c := NewCashManager(DefaultCashManagerConfig())

	crash := c.HandleEmergencyScenario(EmergencyMarketCrash)
	assert.InDelta(t, 0.60, crash.TargetCashRatio, 1e-9)
	require.Len(t, crash.Actions, 3)
	assert.Equal(t, CashStopNewEntries, crash.Actions[0].Kind)
	assert.Equal(t, CashCutAllPositions, crash.Actions[1].Kind)
	assert.InDelta(t, 0.40, crash.Actions[1].Fraction, 1e-9)

	flash := c.HandleEmergencyScenario(EmergencyFlashCrash)
	assert.InDelta(t, 0.30, flash.TargetCashRatio, 1e-9)

	news := c.HandleEmergencyScenario(EmergencyMajorNews)
	assert.InDelta(t, 0.40, news.TargetCashRatio, 1e-9)
}
