package trading

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkorolev/coindeck/internal/domain"
)

func fractionDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// entryRule admits a new entry while the open-position count is below
// Ceiling and the signal score is at least MinScore. Rules are ordered
// by ceiling; the first matching rule applies.
type entryRule struct {
	Ceiling  int
	MinScore float64
}

// defaultEntryRules relax the score threshold when the book is nearly
// empty and tighten it as it fills. At six or more open positions entry
// is always refused; that ceiling is a hard capacity limit.
var defaultEntryRules = []entryRule{
	{Ceiling: 2, MinScore: 7.0},
	{Ceiling: 3, MinScore: 7.5},
	{Ceiling: 4, MinScore: 8.0},
	{Ceiling: 5, MinScore: 8.5},
	{Ceiling: 6, MinScore: 9.0},
}

// maxOpenPositions is the hard book capacity.
const maxOpenPositions = 6

// minEntryCashRatio is the cash floor below which no entry is admitted.
const minEntryCashRatio = 0.05

// AdjustmentKind is the verdict for an existing position given a fresh
// signal on the same symbol.
type AdjustmentKind int

const (
	AdjustHold AdjustmentKind = iota
	AdjustAdd
	AdjustReduce
)

func (k AdjustmentKind) String() string {
	switch k {
	case AdjustAdd:
		return "ADD"
	case AdjustReduce:
		return "REDUCE"
	}
	return "HOLD"
}

// Adjustment is the recommended change for an existing position.
type Adjustment struct {
	Kind      AdjustmentKind
	Fraction  float64
	Rationale string
}

// SwapProposal pairs a weak holding with a stronger new signal.
type SwapProposal struct {
	ExitSymbol string
	Enter      domain.Signal
	Rationale  string
}

// PositionManagerConfig tunes the dynamic position policy.
type PositionManagerConfig struct {
	AddScoreDelta        float64
	AddMaxLoss           float64
	AddFraction          float64
	ReduceScoreDelta     float64
	ReduceLoss           float64
	ReduceFraction       float64
	WeakScore            float64
	WeakLoss             float64
	SwapCandidateScore   float64
	SwapScoreGap         float64
	SwapWeakLoss         float64
	MaxNewEntriesPerPlan int
}

// DefaultPositionManagerConfig returns the production policy.
func DefaultPositionManagerConfig() PositionManagerConfig {
	return PositionManagerConfig{
		AddScoreDelta:        1.0,
		AddMaxLoss:           -0.03,
		AddFraction:          0.50,
		ReduceScoreDelta:     -1.5,
		ReduceLoss:           -0.08,
		ReduceFraction:       0.30,
		WeakScore:            6.5,
		WeakLoss:             -0.05,
		SwapCandidateScore:   7.5,
		SwapScoreGap:         1.5,
		SwapWeakLoss:         -0.05,
		MaxNewEntriesPerPlan: 2,
	}
}

// PositionManager gatekeeps entries, evaluates add/reduce/swap actions
// for existing positions, and assembles optimization plans for the
// trading engine.
type PositionManager struct {
	cfg   PositionManagerConfig
	rules []entryRule
	now   func() time.Time
}

// NewPositionManager creates a position manager.
func NewPositionManager(cfg PositionManagerConfig) *PositionManager {
	if cfg.AddScoreDelta == 0 {
		cfg = DefaultPositionManagerConfig()
	}
	return &PositionManager{
		cfg:   cfg,
		rules: defaultEntryRules,
		now:   time.Now,
	}
}

// requiredScore returns the entry threshold for the current book size.
// The second result is false at or above the hard capacity.
func (m *PositionManager) requiredScore(openPositions int) (float64, bool) {
	if openPositions >= maxOpenPositions {
		return 0, false
	}
	for _, rule := range m.rules {
		if openPositions < rule.Ceiling {
			return rule.MinScore, true
		}
	}
	return 0, false
}

// CanEnter decides whether a new-entry signal is admitted given the
// current open-position count and cash ratio.
func (m *PositionManager) CanEnter(sig domain.Signal, openPositions int, cashRatio float64) (bool, string) {
	if openPositions >= maxOpenPositions {
		return false, fmt.Sprintf("maximum position count reached (%d)", maxOpenPositions)
	}
	if cashRatio <= minEntryCashRatio {
		return false, fmt.Sprintf("cash ratio %.1f%% below entry floor", cashRatio*100)
	}
	threshold, ok := m.requiredScore(openPositions)
	if !ok {
		return false, fmt.Sprintf("maximum position count reached (%d)", maxOpenPositions)
	}
	if sig.Score < threshold {
		return false, fmt.Sprintf("score %.1f below required %.1f at %d open positions", sig.Score, threshold, openPositions)
	}
	return true, ""
}

// EvaluateAdjustment compares a fresh signal against the held position:
// add when the score improved materially and the position is not deep
// in loss, reduce when the score deteriorated or the loss breached the
// limit, otherwise hold.
func (m *PositionManager) EvaluateAdjustment(pos domain.Position, sig domain.Signal) Adjustment {
	delta := sig.Score - pos.EntryScore
	profit := pos.ProfitPercent()

	if delta <= m.cfg.ReduceScoreDelta || profit <= m.cfg.ReduceLoss {
		return Adjustment{
			Kind:      AdjustReduce,
			Fraction:  m.cfg.ReduceFraction,
			Rationale: fmt.Sprintf("score delta %.1f, profit %.1f%%: trim exposure", delta, profit*100),
		}
	}
	if delta >= m.cfg.AddScoreDelta && profit >= m.cfg.AddMaxLoss {
		return Adjustment{
			Kind:      AdjustAdd,
			Fraction:  m.cfg.AddFraction,
			Rationale: fmt.Sprintf("score improved by %.1f with profit %.1f%%: scale in", delta, profit*100),
		}
	}
	return Adjustment{Kind: AdjustHold}
}

// currentScore returns the freshest known score for a held symbol: the
// latest signal for it when available, otherwise the entry score.
func currentScore(pos domain.Position, signals map[string]domain.Signal) float64 {
	if sig, ok := signals[pos.Symbol]; ok {
		return sig.Score
	}
	return pos.EntryScore
}

// FindSwaps pairs the weakest open positions with the strongest unheld
// signals and proposes a swap when the score gap or the weak holding's
// loss justifies it.
func (m *PositionManager) FindSwaps(positions []domain.Position, signals []domain.Signal) []SwapProposal {
	held := make(map[string]bool, len(positions))
	latest := make(map[string]domain.Signal, len(signals))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	for _, s := range signals {
		latest[s.Symbol] = s
	}

	var weak []domain.Position
	for _, p := range positions {
		if currentScore(p, latest) < m.cfg.WeakScore || p.ProfitPercent() < m.cfg.WeakLoss {
			weak = append(weak, p)
		}
	}
	var candidates []domain.Signal
	for _, s := range signals {
		if s.Direction == domain.DirectionBuy && !held[s.Symbol] && s.Score >= m.cfg.SwapCandidateScore {
			candidates = append(candidates, s)
		}
	}
	if len(weak) == 0 || len(candidates) == 0 {
		return nil
	}

	// weakest first, strongest first
	sort.SliceStable(weak, func(i, j int) bool {
		return currentScore(weak[i], latest) < currentScore(weak[j], latest)
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	var proposals []SwapProposal
	n := len(weak)
	if len(candidates) < n {
		n = len(candidates)
	}
	for i := 0; i < n; i++ {
		pos, sig := weak[i], candidates[i]
		gap := sig.Score - currentScore(pos, latest)
		loss := pos.ProfitPercent()
		if gap >= m.cfg.SwapScoreGap || loss <= m.cfg.SwapWeakLoss {
			proposals = append(proposals, SwapProposal{
				ExitSymbol: pos.Symbol,
				Enter:      sig,
				Rationale:  fmt.Sprintf("replace %s (score %.1f, profit %.1f%%) with %s (score %.1f)", pos.Symbol, currentScore(pos, latest), loss*100, sig.Symbol, sig.Score),
			})
		}
	}
	return proposals
}

// GenerateOptimizationPlan assembles adjustments, swaps and up to the
// configured number of new entries into one prioritized action list.
func (m *PositionManager) GenerateOptimizationPlan(signals []domain.Signal, snapshot domain.PortfolioSnapshot) domain.OptimizationPlan {
	plan := domain.OptimizationPlan{CreatedAt: m.now()}

	latest := make(map[string]domain.Signal, len(signals))
	held := make(map[string]bool, len(snapshot.Positions))
	for _, s := range signals {
		latest[s.Symbol] = s
	}
	for _, p := range snapshot.Positions {
		held[p.Symbol] = true
	}

	// adjustments for held symbols with fresh signals
	for _, p := range snapshot.Positions {
		sig, ok := latest[p.Symbol]
		if !ok {
			continue
		}
		adj := m.EvaluateAdjustment(p, sig)
		switch adj.Kind {
		case AdjustReduce:
			sigCopy := sig
			plan.Actions = append(plan.Actions, domain.PlannedAction{
				Kind:      domain.PlanReduce,
				Symbol:    p.Symbol,
				Quantity:  p.Quantity.Mul(fractionDecimal(adj.Fraction)),
				Signal:    &sigCopy,
				Priority:  domain.PriorityHigh,
				Rationale: adj.Rationale,
			})
		case AdjustAdd:
			sigCopy := sig
			plan.Actions = append(plan.Actions, domain.PlannedAction{
				Kind:      domain.PlanAdd,
				Symbol:    p.Symbol,
				Quantity:  p.Quantity.Mul(fractionDecimal(adj.Fraction)),
				Signal:    &sigCopy,
				Priority:  domain.PriorityMedium,
				Rationale: adj.Rationale,
			})
		}
	}

	// swaps
	for _, swap := range m.FindSwaps(snapshot.Positions, signals) {
		enter := swap.Enter
		plan.Actions = append(plan.Actions, domain.PlannedAction{
			Kind:      domain.PlanSwap,
			Symbol:    swap.ExitSymbol,
			SwapFor:   enter.Symbol,
			Signal:    &enter,
			Priority:  domain.PriorityHigh,
			Rationale: swap.Rationale,
		})
	}

	// new entries, strongest first
	var entries []domain.Signal
	for _, s := range signals {
		if s.Direction != domain.DirectionBuy || held[s.Symbol] {
			continue
		}
		if ok, _ := m.CanEnter(s, len(snapshot.Positions), snapshot.CashRatio()); ok {
			entries = append(entries, s)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > m.cfg.MaxNewEntriesPerPlan {
		entries = entries[:m.cfg.MaxNewEntriesPerPlan]
	}
	for i, s := range entries {
		sigCopy := s
		priority := domain.PriorityMedium
		if i > 0 {
			priority = domain.PriorityLow
		}
		plan.Actions = append(plan.Actions, domain.PlannedAction{
			Kind:      domain.PlanNewEntry,
			Symbol:    s.Symbol,
			Signal:    &sigCopy,
			Priority:  priority,
			Rationale: fmt.Sprintf("new entry candidate ranked %d with score %.1f", i+1, s.Score),
		})
	}

	// execution order: HIGH before MEDIUM before LOW
	sort.SliceStable(plan.Actions, func(i, j int) bool {
		return plan.Actions[i].Priority < plan.Actions[j].Priority
	})
	return plan
}
