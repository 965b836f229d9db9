package internal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mkorolev/coindeck/internal/domain"
	"github.com/mkorolev/coindeck/internal/services/marketdata"
	"github.com/mkorolev/coindeck/internal/services/trading"
)

const decisionInterval = time.Minute

// runDecisionLoop periodically turns cached indicators and news scores
// into signals, asks the position manager for an optimization plan,
// executes it, and applies the cash policy.
func (a *App) runDecisionLoop(ctx context.Context) error {
	ticker := time.NewTicker(decisionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.decide(ctx)
		}
	}
}

func (a *App) decide(ctx context.Context) {
	snap := a.orchestrator.SnapshotView()
	if len(snap.Prices) == 0 {
		return
	}

	regime := deriveRegime(snap, a.cfg.Symbols.Critical)
	a.engine.SetRegime(regime)

	signals := a.deriveSignals(ctx, snap)
	if len(signals) == 0 {
		return
	}

	portfolio := a.engine.PortfolioSummary()
	plan := a.manager.GenerateOptimizationPlan(signals, portfolio)
	if !plan.Empty() {
		results := a.engine.ExecutePlan(plan)
		executed := 0
		for _, r := range results {
			if r.Executed {
				executed++
			}
			if r.Emergency {
				a.logger.Warn("emergency advisory raised", zap.String("reason", r.EmergencyReason))
			}
		}
		a.logger.Info("optimization plan applied",
			zap.Int("actions", len(plan.Actions)),
			zap.Int("executed", executed),
			zap.String("regime", regime.String()))
	}

	a.rebalanceCash(regime, snap)
}

// deriveSignals scores every fresh cached symbol from its indicators
// and the external news score. Scores run 0..10; direction flips to
// sell on a clearly deteriorated picture.
func (a *App) deriveSignals(ctx context.Context, snap marketdata.Snapshot) []domain.Signal {
	now := time.Now()
	signals := make([]domain.Signal, 0, len(snap.Prices))
	for symbol, entry := range snap.Prices {
		if !entry.Fresh(now) || entry.Tick.Price.LessThanOrEqual(decimal.Zero) {
			continue
		}

		technical, reasons := scoreIndicators(entry)

		sentiment, err := a.scorer.Score(ctx, symbol)
		if err != nil {
			a.logger.Debug("news score unavailable", zap.String("symbol", symbol), zap.Error(err))
			sentiment = 5
		}

		// 70% technicals, 30% sentiment
		score := technical*0.7 + sentiment*0.3
		direction := domain.DirectionBuy
		if score < 3.5 {
			direction = domain.DirectionSell
		}

		signals = append(signals, domain.Signal{
			Symbol:     symbol,
			Direction:  direction,
			Score:      score,
			Confidence: confidenceFor(entry),
			Price:      entry.Tick.Price,
			Volume:     entry.Tick.Volume24h,
			Reasons:    reasons,
		})
	}
	return signals
}

// scoreIndicators maps the indicator set onto a 0..10 score starting
// from a neutral 5.
func scoreIndicators(entry domain.PriceEntry) (float64, []string) {
	score := 5.0
	var reasons []string

	rsi, _ := entry.Indicators.RSI14.Float64()
	switch {
	case rsi <= 30:
		score += 2
		reasons = append(reasons, "rsi oversold")
	case rsi >= 70:
		score -= 2
		reasons = append(reasons, "rsi overbought")
	}

	if entry.Indicators.MACDHistogram.GreaterThan(decimal.Zero) {
		score += 1
		reasons = append(reasons, "macd momentum up")
	} else if entry.Indicators.MACDHistogram.LessThan(decimal.Zero) {
		score -= 1
		reasons = append(reasons, "macd momentum down")
	}

	price := entry.Tick.Price
	if entry.Indicators.MA20.GreaterThan(decimal.Zero) {
		if price.GreaterThan(entry.Indicators.MA20) {
			score += 1
			reasons = append(reasons, "above ma20")
		} else {
			score -= 1
			reasons = append(reasons, "below ma20")
		}
	}
	if entry.Indicators.BollingerLower.GreaterThan(decimal.Zero) && price.LessThan(entry.Indicators.BollingerLower) {
		score += 1
		reasons = append(reasons, "below lower band")
	}

	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score, reasons
}

// confidenceFor is higher for critical-tier symbols whose data
// refreshes fastest.
func confidenceFor(entry domain.PriceEntry) float64 {
	switch entry.Tier {
	case domain.TierCritical:
		return 0.8
	case domain.TierImportant:
		return 0.6
	}
	return 0.4
}

// deriveRegime classifies the market from the critical symbols' moving
// averages: bull when prices sit above both, bear when below both.
func deriveRegime(snap marketdata.Snapshot, critical []string) domain.Regime {
	above, below, counted := 0, 0, 0
	for _, symbol := range critical {
		entry, ok := snap.Prices[symbol]
		if !ok || entry.Indicators.MA60.LessThanOrEqual(decimal.Zero) {
			continue
		}
		counted++
		price := entry.Tick.Price
		if price.GreaterThan(entry.Indicators.MA20) && price.GreaterThan(entry.Indicators.MA60) {
			above++
		} else if price.LessThan(entry.Indicators.MA20) && price.LessThan(entry.Indicators.MA60) {
			below++
		}
	}
	if counted == 0 {
		return domain.RegimeNeutral
	}
	switch {
	case above == counted:
		return domain.RegimeBull
	case below == counted:
		return domain.RegimeBear
	case above == 0 && below == 0:
		return domain.RegimeSideways
	}
	return domain.RegimeNeutral
}

// rebalanceCash compares the current cash ratio against the optimal one
// and logs the proposed actions. The actions are advisory; position
// reductions flow through the next optimization plan.
func (a *App) rebalanceCash(regime domain.Regime, snap marketdata.Snapshot) {
	portfolio := a.engine.PortfolioSummary()

	losses := 0.0
	if portfolio.TotalValue.GreaterThan(decimal.Zero) {
		unrealized := decimal.Zero
		for _, p := range portfolio.Positions {
			unrealized = unrealized.Add(p.UnrealizedPnL())
		}
		losses, _ = unrealized.Div(portfolio.TotalValue).Float64()
	}

	optimal := a.cash.CalculateOptimalCashRatio(regime, trading.PortfolioHealth{
		UnrealizedLossPct: losses,
		WinRate:           portfolio.Performance.WinRate,
		RecentPerformance: portfolio.Performance.TotalReturn,
	}, trading.MarketMetrics{Volatility: marketVolatility(snap)})

	actions := a.cash.HandleCashImbalance(portfolio.CashRatio(), optimal, portfolio)
	for _, action := range actions {
		a.logger.Info("cash rebalance proposed",
			zap.String("action", action.Kind.String()),
			zap.String("symbol", action.Symbol),
			zap.String("amount", action.Amount.String()),
			zap.String("rationale", action.Rationale))
	}
}

// marketVolatility averages the absolute 24h change of cached symbols,
// normalized so that a 10% average move reads as 1.0.
func marketVolatility(snap marketdata.Snapshot) float64 {
	if len(snap.Prices) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, entry := range snap.Prices {
		sum = sum.Add(entry.Tick.Change24h.Abs())
	}
	avg, _ := sum.Div(decimal.NewFromInt(int64(len(snap.Prices)))).Float64()
	return avg / 10
}
