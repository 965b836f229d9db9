package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanActionKind is the kind of a proposed portfolio action.
type PlanActionKind int

const (
	PlanAdd PlanActionKind = iota
	PlanReduce
	PlanSwap
	PlanNewEntry
)

func (k PlanActionKind) String() string {
	switch k {
	case PlanAdd:
		return "ADD"
	case PlanReduce:
		return "REDUCE"
	case PlanSwap:
		return "SWAP"
	}
	return "NEW_ENTRY"
}

// PlanPriority orders proposed actions for execution.
type PlanPriority int

const (
	PriorityHigh PlanPriority = iota
	PriorityMedium
	PriorityLow
)

func (p PlanPriority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	}
	return "LOW"
}

// PlannedAction is one proposed position change. For swaps, Symbol is
// the position to exit and SwapFor the signal symbol to enter.
type PlannedAction struct {
	Kind      PlanActionKind
	Symbol    string
	SwapFor   string
	Quantity  decimal.Decimal
	Signal    *Signal
	Priority  PlanPriority
	Rationale string
}

// OptimizationPlan is a ranked batch of proposed position actions,
// produced by the position manager and consumed once by the trading
// engine.
type OptimizationPlan struct {
	CreatedAt time.Time
	Actions   []PlannedAction
}

// Empty reports whether the plan proposes nothing.
func (p OptimizationPlan) Empty() bool {
	return len(p.Actions) == 0
}
