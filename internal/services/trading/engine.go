package trading

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mkorolev/coindeck/internal/domain"
)

// EngineConfig tunes the paper trading engine.
type EngineConfig struct {
	InitialCash decimal.Decimal
	// FeeRate is the flat taker fee applied to every execution amount.
	FeeRate decimal.Decimal
	// MaxPositionFraction caps a single buy's notional relative to
	// total portfolio value.
	MaxPositionFraction float64
	// DrawdownAlert blocks new buys once breached.
	DrawdownAlert float64
	// DrawdownEmergency flags the advisory stop after executions.
	DrawdownEmergency float64
	BuyEnabled        bool
	SellEnabled       bool
}

// DefaultEngineConfig returns the production engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		InitialCash:         decimal.NewFromInt(1_000_000),
		FeeRate:             decimal.NewFromFloat(0.0005),
		MaxPositionFraction: 0.30,
		DrawdownAlert:       0.15,
		DrawdownEmergency:   0.25,
		BuyEnabled:          true,
		SellEnabled:         true,
	}
}

// RankLookup resolves a symbol's market-cap rank for tier
// classification. Zero means unknown.
type RankLookup func(symbol string) int

// ExecutionResult is the synchronous outcome of one signal.
type ExecutionResult struct {
	Executed bool
	Reason   string
	Trade    *domain.Trade
	// Emergency is advisory: the trade executed, but the portfolio
	// drawdown crossed the emergency threshold. Callers decide
	// whether to halt.
	Emergency       bool
	EmergencyReason string
}

// Engine validates and executes buy/sell signals against a simulated
// portfolio, applying fees, risk limits and performance accounting. It
// is the single owner of the portfolio; every mutation goes through
// one serialized entry point.
type Engine struct {
	mu      sync.Mutex
	cfg     EngineConfig
	sizer   *Sizer
	rankFor RankLookup
	logger  *zap.Logger
	now     func() time.Time

	cash      decimal.Decimal
	positions map[string]*domain.Position
	trades    []domain.Trade
	realized  []float64
	perf      domain.Performance
	highWater decimal.Decimal
	regime    domain.Regime
	inactive  map[string]bool
}

// NewEngine creates an engine holding only the initial cash balance.
func NewEngine(cfg EngineConfig, sizer *Sizer, rankFor RankLookup, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InitialCash.IsZero() {
		cfg = DefaultEngineConfig()
	}
	if sizer == nil {
		sizer = NewSizer(DefaultSizerConfig())
	}
	if rankFor == nil {
		rankFor = func(string) int { return 0 }
	}
	return &Engine{
		cfg:       cfg,
		sizer:     sizer,
		rankFor:   rankFor,
		logger:    logger,
		now:       time.Now,
		cash:      cfg.InitialCash,
		positions: make(map[string]*domain.Position),
		highWater: cfg.InitialCash,
		inactive:  make(map[string]bool),
	}
}

// SetRegime updates the market regime used to bias sizing.
func (e *Engine) SetRegime(regime domain.Regime) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regime = regime
}

// SetSymbolActive toggles a symbol's tradability.
func (e *Engine) SetSymbolActive(symbol string, active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if active {
		delete(e.inactive, symbol)
	} else {
		e.inactive[symbol] = true
	}
}

// ExecuteSignal runs the full pipeline for one signal: validate,
// risk-check, size, execute, account. Refused trades leave the
// portfolio untouched. For sells the whole held quantity is closed.
func (e *Engine) ExecuteSignal(sig domain.Signal) ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sig.Direction == domain.DirectionSell {
		pos := e.positions[sig.Symbol]
		var qty decimal.Decimal
		if pos != nil {
			qty = pos.Quantity
		}
		return e.executeLocked(sig, decimal.Zero, qty)
	}

	amount := e.sizer.Size(sig, e.totalValueLocked(), e.cash, len(e.positions), e.regime)
	return e.executeLocked(sig, amount, decimal.Zero)
}

// ExecuteBuyAmount buys the given notional amount of the signal's
// symbol, bypassing the sizer. Used for plan adds and swaps.
func (e *Engine) ExecuteBuyAmount(sig domain.Signal, amount decimal.Decimal) ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executeLocked(sig, amount, decimal.Zero)
}

// ExecuteSellQuantity sells the given quantity of the signal's symbol.
// Used for plan reduces.
func (e *Engine) ExecuteSellQuantity(sig domain.Signal, quantity decimal.Decimal) ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executeLocked(sig, decimal.Zero, quantity)
}

func (e *Engine) executeLocked(sig domain.Signal, buyAmount, sellQuantity decimal.Decimal) ExecutionResult {
	if err := e.validateLocked(sig); err != nil {
		e.logger.Debug("signal rejected", zap.String("symbol", sig.Symbol), zap.Error(err))
		return ExecutionResult{Reason: err.Error()}
	}

	var trade *domain.Trade
	if sig.Direction == domain.DirectionBuy {
		if err := e.checkRiskLimitsLocked(buyAmount); err != nil {
			e.logger.Info("trade refused by risk limit", zap.String("symbol", sig.Symbol), zap.Error(err))
			return ExecutionResult{Reason: err.Error()}
		}
		executed, err := e.executeBuyLocked(sig, buyAmount)
		if err != nil {
			return ExecutionResult{Reason: err.Error()}
		}
		trade = executed
	} else {
		executed, err := e.executeSellLocked(sig, sellQuantity)
		if err != nil {
			return ExecutionResult{Reason: err.Error()}
		}
		trade = executed
	}

	e.recomputePerformanceLocked()
	result := ExecutionResult{Executed: true, Trade: trade}
	if emergency, reason := e.emergencyLocked(); emergency {
		result.Emergency = true
		result.EmergencyReason = reason
		e.logger.Warn("emergency condition flagged", zap.String("reason", reason))
	}
	return result
}

func (e *Engine) validateLocked(sig domain.Signal) error {
	if e.inactive[sig.Symbol] {
		return &domain.ValidationError{Reason: fmt.Sprintf("symbol %s is inactive", sig.Symbol)}
	}
	if sig.Direction == domain.DirectionBuy && !e.cfg.BuyEnabled {
		return &domain.ValidationError{Reason: "buying is disabled"}
	}
	if sig.Direction == domain.DirectionSell && !e.cfg.SellEnabled {
		return &domain.ValidationError{Reason: "selling is disabled"}
	}
	if sig.Price.LessThanOrEqual(decimal.Zero) {
		return &domain.ValidationError{Reason: "price must be positive"}
	}
	if sig.Direction == domain.DirectionSell {
		pos := e.positions[sig.Symbol]
		if pos == nil || pos.Quantity.LessThanOrEqual(decimal.Zero) {
			return &domain.ValidationError{Reason: fmt.Sprintf("no held quantity of %s to sell", sig.Symbol)}
		}
	}
	return nil
}

func (e *Engine) checkRiskLimitsLocked(amount decimal.Decimal) error {
	if dd := e.drawdownLocked(); dd > e.cfg.DrawdownAlert {
		return &domain.RiskLimitError{
			Limit:  "drawdown",
			Reason: fmt.Sprintf("current drawdown %.1f%% exceeds alert threshold %.1f%%", dd*100, e.cfg.DrawdownAlert*100),
		}
	}
	maxNotional := e.totalValueLocked().Mul(decimal.NewFromFloat(e.cfg.MaxPositionFraction))
	if amount.GreaterThan(maxNotional) {
		return &domain.RiskLimitError{
			Limit:  "max_position_size",
			Reason: fmt.Sprintf("notional %s exceeds %.0f%% of portfolio value", amount.StringFixed(2), e.cfg.MaxPositionFraction*100),
		}
	}
	fee := amount.Mul(e.cfg.FeeRate)
	if amount.Add(fee).GreaterThan(e.cash) {
		return &domain.RiskLimitError{
			Limit:  "cash",
			Reason: fmt.Sprintf("insufficient cash: need %s, have %s", amount.Add(fee).StringFixed(2), e.cash.StringFixed(2)),
		}
	}
	return nil
}

func (e *Engine) executeBuyLocked(sig domain.Signal, amount decimal.Decimal) (*domain.Trade, error) {
	quantity := amount.Div(sig.Price).Floor()
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, &domain.ValidationError{Reason: "sized amount is below one unit at the signal price"}
	}
	amount = quantity.Mul(sig.Price)
	fee := amount.Mul(e.cfg.FeeRate)

	e.cash = e.cash.Sub(amount).Sub(fee)

	pos := e.positions[sig.Symbol]
	if pos == nil {
		created, err := domain.NewPosition(sig.Symbol, quantity, sig.Price, sig.Score,
			domain.PositionTierForRank(e.rankFor(sig.Symbol)), e.now())
		if err != nil {
			// roll back the cash mutation; the trade did not happen
			e.cash = e.cash.Add(amount).Add(fee)
			return nil, err
		}
		e.positions[sig.Symbol] = created
	} else {
		totalQty := pos.Quantity.Add(quantity)
		existingNotional := pos.EntryPrice.Mul(pos.Quantity)
		pos.EntryPrice = existingNotional.Add(amount).Div(totalQty)
		pos.Quantity = totalQty
		pos.CurrentPrice = sig.Price
	}

	trade := domain.Trade{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Action:    domain.TradeBuy,
		Price:     sig.Price,
		Quantity:  quantity,
		Amount:    amount,
		Fee:       fee,
		Timestamp: e.now(),
	}
	e.trades = append(e.trades, trade)

	e.logger.Info("buy executed",
		zap.String("symbol", sig.Symbol),
		zap.String("quantity", quantity.String()),
		zap.String("price", sig.Price.String()),
		zap.String("fee", fee.String()))
	return &trade, nil
}

func (e *Engine) executeSellLocked(sig domain.Signal, quantity decimal.Decimal) (*domain.Trade, error) {
	pos := e.positions[sig.Symbol]
	if quantity.GreaterThan(pos.Quantity) {
		quantity = pos.Quantity
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, &domain.ValidationError{Reason: "sell quantity must be positive"}
	}

	amount := quantity.Mul(sig.Price)
	fee := amount.Mul(e.cfg.FeeRate)
	e.cash = e.cash.Add(amount).Sub(fee)

	pnl := sig.Price.Sub(pos.EntryPrice).Mul(quantity)
	profitRate, _ := sig.Price.Sub(pos.EntryPrice).Div(pos.EntryPrice).Float64()

	pos.CurrentPrice = sig.Price
	pos.Quantity = pos.Quantity.Sub(quantity)
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	if pos.Quantity.LessThanOrEqual(decimal.Zero) {
		delete(e.positions, sig.Symbol)
	}

	pnlFloat, _ := pnl.Float64()
	e.realized = append(e.realized, pnlFloat)

	trade := domain.Trade{
		ID:         uuid.NewString(),
		Symbol:     sig.Symbol,
		Action:     domain.TradeSell,
		Price:      sig.Price,
		Quantity:   quantity,
		Amount:     amount,
		Fee:        fee,
		ProfitRate: profitRate,
		Timestamp:  e.now(),
	}
	e.trades = append(e.trades, trade)

	e.logger.Info("sell executed",
		zap.String("symbol", sig.Symbol),
		zap.String("quantity", quantity.String()),
		zap.String("price", sig.Price.String()),
		zap.Float64("profit_rate", profitRate))
	return &trade, nil
}

// UpdatePrices refreshes the mark price of held positions and
// recomputes performance. Total portfolio value is always derived from
// cash plus current marks, never cached.
func (e *Engine) UpdatePrices(prices map[string]decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for symbol, price := range prices {
		if pos, ok := e.positions[symbol]; ok && price.GreaterThan(decimal.Zero) {
			pos.CurrentPrice = price
		}
	}
	e.recomputePerformanceLocked()
}

func (e *Engine) totalValueLocked() decimal.Decimal {
	total := e.cash
	for _, pos := range e.positions {
		total = total.Add(pos.MarketValue())
	}
	return total
}

func (e *Engine) drawdownLocked() float64 {
	if e.highWater.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	ratio, _ := e.totalValueLocked().Div(e.highWater).Float64()
	if ratio >= 1 {
		return 0
	}
	return 1 - ratio
}

func (e *Engine) recomputePerformanceLocked() {
	total := e.totalValueLocked()
	if total.GreaterThan(e.highWater) {
		e.highWater = total
	}

	totalReturn, _ := total.Div(e.cfg.InitialCash).Float64()
	e.perf.TotalReturn = totalReturn - 1

	if dd := e.drawdownLocked(); dd > e.perf.MaxDrawdown {
		e.perf.MaxDrawdown = dd
	}

	var sellRates []float64
	wins := 0
	grossProfit, grossLoss := 0.0, 0.0
	sells := 0
	for _, t := range e.trades {
		if t.Action != domain.TradeSell {
			continue
		}
		sells++
		sellRates = append(sellRates, t.ProfitRate)
		if t.ProfitRate > 0 {
			wins++
		}
	}
	for _, pnl := range e.realized {
		if pnl > 0 {
			grossProfit += pnl
		} else {
			grossLoss += -pnl
		}
	}

	if sells > 0 {
		e.perf.WinRate = float64(wins) / float64(sells)
	}
	if grossLoss > 0 {
		e.perf.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		e.perf.ProfitFactor = math.Inf(1)
	} else {
		e.perf.ProfitFactor = 0
	}
	e.perf.Sharpe = sharpeLike(sellRates)
}

func sharpeLike(rates []float64) float64 {
	if len(rates) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rates {
		mean += r
	}
	mean /= float64(len(rates))

	variance := 0.0
	for _, r := range rates {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rates) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

func (e *Engine) emergencyLocked() (bool, string) {
	dd := e.drawdownLocked()
	if dd > e.cfg.DrawdownEmergency {
		return true, fmt.Sprintf("drawdown %.1f%% exceeds emergency threshold %.1f%%: stop trading",
			dd*100, e.cfg.DrawdownEmergency*100)
	}
	return false, ""
}

// CheckEmergencyConditions reports the advisory stop flag. It never
// halts the engine by itself.
func (e *Engine) CheckEmergencyConditions() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emergencyLocked()
}

// PortfolioSummary returns a deep copy of the portfolio state.
func (e *Engine) PortfolioSummary() domain.PortfolioSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	positions := make([]domain.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		positions = append(positions, *pos)
	}
	trades := make([]domain.Trade, len(e.trades))
	copy(trades, e.trades)

	return domain.PortfolioSnapshot{
		Cash:          e.cash,
		Positions:     positions,
		Trades:        trades,
		Performance:   e.perf,
		TotalValue:    e.totalValueLocked(),
		HighWaterMark: e.highWater,
		Drawdown:      e.drawdownLocked(),
		LastUpdated:   e.now(),
	}
}

// Restore replaces the portfolio state from a snapshot. Volatile
// fields (LastUpdated, derived totals) are recomputed.
func (e *Engine) Restore(snapshot domain.PortfolioSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cash = snapshot.Cash
	e.positions = make(map[string]*domain.Position, len(snapshot.Positions))
	for i := range snapshot.Positions {
		pos := snapshot.Positions[i]
		e.positions[pos.Symbol] = &pos
	}
	e.trades = make([]domain.Trade, len(snapshot.Trades))
	copy(e.trades, snapshot.Trades)
	e.realized = e.realized[:0]
	for _, t := range e.trades {
		if t.Action == domain.TradeSell {
			// a total loss leaves no cost basis to divide by
			var pnl float64
			if t.ProfitRate <= -1 {
				pnl, _ = t.Amount.Neg().Float64()
			} else {
				pnl, _ = t.Amount.Sub(t.Amount.Div(decimal.NewFromFloat(1 + t.ProfitRate))).Float64()
			}
			e.realized = append(e.realized, pnl)
		}
	}
	e.highWater = snapshot.HighWaterMark
	if e.highWater.LessThanOrEqual(decimal.Zero) {
		e.highWater = e.totalValueLocked()
	}
	e.recomputePerformanceLocked()
}

func (e *Engine) positionMark(symbol string) (decimal.Decimal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[symbol]
	if !ok || pos.CurrentPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, false
	}
	return pos.CurrentPrice, true
}

// ExecutePlan applies an optimization plan action by action, in the
// plan's priority order. Execution is serialized with every other
// portfolio mutation.
func (e *Engine) ExecutePlan(plan domain.OptimizationPlan) []ExecutionResult {
	results := make([]ExecutionResult, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		if action.Signal == nil {
			results = append(results, ExecutionResult{Reason: "plan action carries no signal"})
			continue
		}
		sig := *action.Signal

		switch action.Kind {
		case domain.PlanReduce:
			sig.Direction = domain.DirectionSell
			results = append(results, e.ExecuteSellQuantity(sig, action.Quantity))
		case domain.PlanAdd:
			sig.Direction = domain.DirectionBuy
			results = append(results, e.ExecuteBuyAmount(sig, action.Quantity.Mul(sig.Price)))
		case domain.PlanSwap:
			exit := sig
			exit.Symbol = action.Symbol
			exit.Direction = domain.DirectionSell
			if mark, ok := e.positionMark(action.Symbol); ok {
				exit.Price = mark
			}
			exitRes := e.ExecuteSignal(exit)
			results = append(results, exitRes)
			if exitRes.Executed {
				enter := sig
				enter.Symbol = action.SwapFor
				enter.Direction = domain.DirectionBuy
				results = append(results, e.ExecuteSignal(enter))
			}
		case domain.PlanNewEntry:
			sig.Direction = domain.DirectionBuy
			results = append(results, e.ExecuteSignal(sig))
		}
	}
	return results
}
