// Package resilience contains the building blocks that guard external
// API calls: an adaptive rate limiter, a circuit breaker, retry with
// exponential backoff, and a health monitor that aggregates call
// outcomes into a throttling verdict.
package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Priority is the admission class of an external call.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityImportant
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityImportant:
		return "important"
	}
	return "background"
}

// share returns the fraction of the per-minute budget available to the
// priority class.
func (p Priority) share() float64 {
	switch p {
	case PriorityCritical:
		return 0.90
	case PriorityImportant:
		return 0.75
	}
	return 0.60
}

// RateLimiterConfig bounds the adaptive call budget.
type RateLimiterConfig struct {
	InitialBudget int
	MinBudget     int
	MaxBudget     int
	HistorySize   int
}

// DefaultRateLimiterConfig returns the production defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		InitialBudget: 70,
		MinBudget:     30,
		MaxBudget:     90,
		HistorySize:   100,
	}
}

type callRecord struct {
	success bool
	latency time.Duration
}

// RateLimiter tracks a rolling per-minute call budget per priority
// class and adapts the budget from recent success rate and latency.
type RateLimiter struct {
	mu          sync.Mutex
	cfg         RateLimiterConfig
	budget      int
	windowStart time.Time
	counts      map[Priority]int
	lastCall    time.Time
	history     []callRecord
	logger      *zap.Logger
	now         func() time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimiterConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InitialBudget == 0 {
		cfg = DefaultRateLimiterConfig()
	}
	return &RateLimiter{
		cfg:    cfg,
		budget: cfg.InitialBudget,
		counts: make(map[Priority]int),
		logger: logger,
		now:    time.Now,
	}
}

// MinInterval returns the minimum spacing between any two admitted
// calls at the current budget, floored at 500ms.
func (r *RateLimiter) MinInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minIntervalLocked()
}

func (r *RateLimiter) minIntervalLocked() time.Duration {
	interval := time.Duration(float64(time.Minute) / float64(r.budget) * 0.8)
	if interval < 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	return interval
}

// CanCall reports whether a call of the given priority is admitted
// right now. An admitted call consumes one slot of the class's share of
// the minute window.
func (r *RateLimiter) CanCall(p Priority) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.counts = make(map[Priority]int)
	}

	limit := int(float64(r.budget) * p.share())
	if r.counts[p] >= limit {
		return false
	}
	if !r.lastCall.IsZero() && now.Sub(r.lastCall) < r.minIntervalLocked() {
		return false
	}

	r.counts[p]++
	r.lastCall = now
	return true
}

// RecordCall appends a call outcome to the bounded history used by
// AdjustLimits.
func (r *RateLimiter) RecordCall(success bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, callRecord{success: success, latency: latency})
	if len(r.history) > r.cfg.HistorySize {
		r.history = r.history[len(r.history)-r.cfg.HistorySize:]
	}
}

func (r *RateLimiter) statsLocked() (successRate float64, avgLatency time.Duration) {
	if len(r.history) == 0 {
		return 1, 0
	}
	var ok int
	var total time.Duration
	for _, rec := range r.history {
		if rec.success {
			ok++
		}
		total += rec.latency
	}
	return float64(ok) / float64(len(r.history)), total / time.Duration(len(r.history))
}

// AdjustLimits retunes the per-minute budget from observed outcomes:
// +10% when success rate >= 95% and mean latency < 1s, -20% when
// success rate drops below 90%. The budget stays within configured
// bounds.
func (r *RateLimiter) AdjustLimits() {
	r.mu.Lock()
	defer r.mu.Unlock()

	successRate, avgLatency := r.statsLocked()
	old := r.budget
	switch {
	case successRate >= 0.95 && avgLatency < time.Second:
		r.budget = int(float64(r.budget) * 1.1)
	case successRate < 0.90:
		r.budget = int(float64(r.budget) * 0.8)
	}
	if r.budget > r.cfg.MaxBudget {
		r.budget = r.cfg.MaxBudget
	}
	if r.budget < r.cfg.MinBudget {
		r.budget = r.cfg.MinBudget
	}
	if r.budget != old {
		r.logger.Info("rate limiter budget adjusted",
			zap.Int("old", old),
			zap.Int("new", r.budget),
			zap.Float64("success_rate", successRate),
			zap.Duration("avg_latency", avgLatency))
	}
}

// RateLimiterStatus is an observability snapshot.
type RateLimiterStatus struct {
	Budget      int            `json:"budget"`
	SuccessRate float64        `json:"successRate"`
	AvgLatency  time.Duration  `json:"avgLatency"`
	WindowCalls map[string]int `json:"windowCalls"`
	MinInterval time.Duration  `json:"minInterval"`
}

// Status returns the current limiter state for observability.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	successRate, avgLatency := r.statsLocked()
	calls := make(map[string]int, len(r.counts))
	for p, n := range r.counts {
		calls[p.String()] = n
	}
	return RateLimiterStatus{
		Budget:      r.budget,
		SuccessRate: successRate,
		AvgLatency:  avgLatency,
		WindowCalls: calls,
		MinInterval: r.minIntervalLocked(),
	}
}
