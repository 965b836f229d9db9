package trading

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkorolev/coindeck/internal/domain"
)

// MarketMetrics feeds the cash manager's volatility adjustment.
type MarketMetrics struct {
	// Volatility is the observed market volatility in [0, 1].
	Volatility float64
	// Uncertain marks elevated macro uncertainty.
	Uncertain bool
}

// PortfolioHealth summarises the state the cash target reacts to.
type PortfolioHealth struct {
	// UnrealizedLossPct is the aggregate open PnL as a fraction of
	// value, negative for losses.
	UnrealizedLossPct float64
	WinRate           float64
	// RecentPerformance is the return over the recent trade window.
	RecentPerformance float64
}

// CashActionKind names a proposed rebalancing step.
type CashActionKind int

const (
	CashIncreaseInvestment CashActionKind = iota
	CashReducePosition
	CashStopNewEntries
	CashCutAllPositions
	CashArmStopLosses
	CashReviewHoldings
)

func (k CashActionKind) String() string {
	switch k {
	case CashIncreaseInvestment:
		return "INCREASE_INVESTMENT"
	case CashReducePosition:
		return "REDUCE_POSITION"
	case CashStopNewEntries:
		return "STOP_NEW_ENTRIES"
	case CashCutAllPositions:
		return "CUT_ALL_POSITIONS"
	case CashArmStopLosses:
		return "ARM_STOP_LOSSES"
	}
	return "REVIEW_HOLDINGS"
}

// CashAction is one proposed rebalancing step.
type CashAction struct {
	Kind      CashActionKind
	Symbol    string
	Amount    decimal.Decimal
	Fraction  float64
	Rationale string
}

// EmergencyKind classifies an emergency scenario.
type EmergencyKind int

const (
	EmergencyMarketCrash EmergencyKind = iota
	EmergencyFlashCrash
	EmergencyMajorNews
)

func (k EmergencyKind) String() string {
	switch k {
	case EmergencyMarketCrash:
		return "market_crash"
	case EmergencyFlashCrash:
		return "flash_crash"
	}
	return "major_news"
}

// EmergencyPlan is the fixed response to an emergency scenario.
type EmergencyPlan struct {
	TargetCashRatio float64
	Actions         []CashAction
}

// CashManagerConfig tunes the cash ratio policy.
type CashManagerConfig struct {
	BaseRatio float64
	MinRatio  float64
	MaxRatio  float64
	// DeadBand is the gap below which no rebalancing happens.
	DeadBand float64
	// InvestGap is the surplus above which investment increases.
	InvestGap float64
	// ReduceGap is the shortfall below which positions are reduced.
	ReduceGap      float64
	HighVolatility float64
	LowVolatility  float64
}

// DefaultCashManagerConfig returns the production cash policy.
func DefaultCashManagerConfig() CashManagerConfig {
	return CashManagerConfig{
		BaseRatio:      0.15,
		MinRatio:       0.05,
		MaxRatio:       0.40,
		DeadBand:       0.05,
		InvestGap:      0.10,
		ReduceGap:      0.05,
		HighVolatility: 0.60,
		LowVolatility:  0.20,
	}
}

// CashManager computes a target cash ratio from market regime and
// portfolio health and proposes rebalancing actions toward it.
type CashManager struct {
	cfg CashManagerConfig
	now func() time.Time
}

// NewCashManager creates a cash manager.
func NewCashManager(cfg CashManagerConfig) *CashManager {
	if cfg.BaseRatio == 0 {
		cfg = DefaultCashManagerConfig()
	}
	return &CashManager{cfg: cfg, now: time.Now}
}

// CalculateOptimalCashRatio derives the target cash fraction of the
// portfolio, clamped to the configured bounds.
func (c *CashManager) CalculateOptimalCashRatio(regime domain.Regime, health PortfolioHealth, metrics MarketMetrics) float64 {
	ratio := c.cfg.BaseRatio

	switch regime {
	case domain.RegimeBear:
		ratio += 0.15
	case domain.RegimeSideways:
		ratio += 0.10
	case domain.RegimeBull:
		ratio -= 0.05
	}
	if metrics.Uncertain {
		ratio += 0.20
	}

	switch {
	case health.UnrealizedLossPct <= -0.10:
		ratio += 0.10
	case health.UnrealizedLossPct <= -0.05:
		ratio += 0.05
	}
	if health.WinRate < 0.40 {
		ratio += 0.05
	}
	if health.RecentPerformance < -0.05 {
		ratio += 0.05
	}

	switch {
	case metrics.Volatility >= c.cfg.HighVolatility:
		ratio += 0.10
	case metrics.Volatility <= c.cfg.LowVolatility:
		ratio -= 0.03
	}

	return math.Min(c.cfg.MaxRatio, math.Max(c.cfg.MinRatio, ratio))
}

// weaknessScore ranks positions for forced reduction: heavier losses,
// weaker entry scores, and longer holding periods score higher.
func (c *CashManager) weaknessScore(p domain.Position) float64 {
	loss := -p.ProfitPercent() // positive when losing
	scoreGap := (10 - p.EntryScore) / 10
	days := p.HoldingDuration(c.now()).Hours() / 24
	holding := math.Min(days/30, 1)
	return loss*3 + scoreGap*2 + holding
}

// HandleCashImbalance proposes actions that move the current cash
// ratio toward the optimal one. Gaps inside the dead band are ignored.
func (c *CashManager) HandleCashImbalance(current, optimal float64, snapshot domain.PortfolioSnapshot) []CashAction {
	gap := current - optimal
	if math.Abs(gap) < c.cfg.DeadBand {
		return nil
	}

	if gap > c.cfg.InvestGap {
		amount := snapshot.TotalValue.Mul(decimal.NewFromFloat(gap))
		return []CashAction{{
			Kind:      CashIncreaseInvestment,
			Amount:    amount,
			Rationale: fmt.Sprintf("cash ratio %.1f%% exceeds target %.1f%%, deploy the excess", current*100, optimal*100),
		}}
	}

	if gap < -c.cfg.ReduceGap {
		shortfall := snapshot.TotalValue.Mul(decimal.NewFromFloat(-gap))
		ranked := make([]domain.Position, len(snapshot.Positions))
		copy(ranked, snapshot.Positions)
		sort.SliceStable(ranked, func(i, j int) bool {
			return c.weaknessScore(ranked[i]) > c.weaknessScore(ranked[j])
		})

		var actions []CashAction
		covered := decimal.Zero
		for _, p := range ranked {
			if covered.GreaterThanOrEqual(shortfall) {
				break
			}
			value := p.MarketValue()
			actions = append(actions, CashAction{
				Kind:      CashReducePosition,
				Symbol:    p.Symbol,
				Amount:    value,
				Rationale: fmt.Sprintf("weakest holding (score %.2f), freeing cash toward %.1f%% target", c.weaknessScore(p), optimal*100),
			})
			covered = covered.Add(value)
		}
		return actions
	}

	return nil
}

// HandleEmergencyScenario returns the fixed target cash ratio and
// ordered action list for the scenario.
func (c *CashManager) HandleEmergencyScenario(kind EmergencyKind) EmergencyPlan {
	switch kind {
	case EmergencyMarketCrash:
		return EmergencyPlan{
			TargetCashRatio: 0.60,
			Actions: []CashAction{
				{Kind: CashStopNewEntries, Rationale: "market crash: freeze new entries"},
				{Kind: CashCutAllPositions, Fraction: 0.40, Rationale: "market crash: cut all positions by 40%"},
				{Kind: CashArmStopLosses, Rationale: "market crash: arm stop-losses on the remainder"},
			},
		}
	case EmergencyFlashCrash:
		return EmergencyPlan{
			TargetCashRatio: 0.30,
			Actions: []CashAction{
				{Kind: CashStopNewEntries, Rationale: "flash crash: pause entries until the book stabilises"},
				{Kind: CashReviewHoldings, Rationale: "flash crash: re-verify marks before acting"},
			},
		}
	}
	return EmergencyPlan{
		TargetCashRatio: 0.40,
		Actions: []CashAction{
			{Kind: CashStopNewEntries, Rationale: "major news: freeze new entries"},
			{Kind: CashArmStopLosses, Rationale: "major news: arm stop-losses"},
			{Kind: CashReviewHoldings, Rationale: "major news: review exposure per holding"},
		},
	}
}
