package marketdata

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryCapacity bounds the per-symbol sample ring.
const HistoryCapacity = 100

// Sample is one observed (price, volume) point.
type Sample struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	At     time.Time
}

// History keeps a bounded, append-only ring of recent samples per
// symbol. The oldest sample is evicted once the ring is full.
type History struct {
	mu      sync.RWMutex
	samples map[string][]Sample
	cap     int
}

// NewHistory creates an empty history with the default capacity.
func NewHistory() *History {
	return &History{
		samples: make(map[string][]Sample),
		cap:     HistoryCapacity,
	}
}

// Append records a sample for the symbol, evicting the oldest one when
// the ring is full.
func (h *History) Append(symbol string, s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ring := append(h.samples[symbol], s)
	if len(ring) > h.cap {
		ring = ring[len(ring)-h.cap:]
	}
	h.samples[symbol] = ring
}

// Closes returns the price series for the symbol, oldest first.
func (h *History) Closes(symbol string) []decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ring := h.samples[symbol]
	closes := make([]decimal.Decimal, len(ring))
	for i, s := range ring {
		closes[i] = s.Price
	}
	return closes
}

// Samples returns a copy of the symbol's sample ring, oldest first.
func (h *History) Samples(symbol string) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ring := h.samples[symbol]
	out := make([]Sample, len(ring))
	copy(out, ring)
	return out
}

// Len returns the number of samples held for the symbol.
func (h *History) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples[symbol])
}
