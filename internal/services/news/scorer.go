package news

import (
	"context"
	"sync"
)

// Scorer produces a 0..10 sentiment score for a symbol. Implementations
// wrap external sentiment sources; the core treats the score as opaque.
type Scorer interface {
	Score(ctx context.Context, symbol string) (float64, error)
}

// StaticScorer serves fixed per-symbol scores with a neutral fallback.
// Used in simulation and tests.
type StaticScorer struct {
	mu      sync.RWMutex
	scores  map[string]float64
	neutral float64
}

// NewStaticScorer creates a scorer seeded with the given scores.
func NewStaticScorer(scores map[string]float64) *StaticScorer {
	copied := make(map[string]float64, len(scores))
	for symbol, score := range scores {
		copied[symbol] = clampScore(score)
	}
	return &StaticScorer{scores: copied, neutral: 5.0}
}

func (s *StaticScorer) Score(_ context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if score, ok := s.scores[symbol]; ok {
		return score, nil
	}
	return s.neutral, nil
}

// SetScore updates one symbol's score.
func (s *StaticScorer) SetScore(symbol string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[symbol] = clampScore(score)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
