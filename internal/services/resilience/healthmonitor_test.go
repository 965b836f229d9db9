package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthMonitor_EmptyIsHealthy(t *testing.T) {
	m := NewHealthMonitor()
	assert.Equal(t, StatusHealthy, m.AssessHealth())
	assert.Equal(t, 1.0, m.Stats().Uptime)
}

func TestHealthMonitor_WarningOnElevatedErrorRate(t *testing.T) {
	m := NewHealthMonitor()
	for i := 0; i < 50; i++ {
		// 10% failures, low latency
		m.Record(i%10 != 0, 300*time.Millisecond)
	}
	assert.Equal(t, StatusWarning, m.AssessHealth())
}

func TestHealthMonitor_CriticalOnHighErrorRate(t *testing.T) {
	m := NewHealthMonitor()
	for i := 0; i < 50; i++ {
		// 20% failures
		m.Record(i%5 != 0, 300*time.Millisecond)
	}
	assert.Equal(t, StatusCritical, m.AssessHealth())
}

func TestHealthMonitor_CriticalOnLatency(t *testing.T) {
	m := NewHealthMonitor()
	for i := 0; i < 50; i++ {
		m.Record(true, 6*time.Second)
	}
	assert.Equal(t, StatusCritical, m.AssessHealth())
}

func TestHealthMonitor_StatsUseRecentWindow(t *testing.T) {
	m := NewHealthMonitor()
	// 50 failures followed by 50 successes: the sample window only
	// sees the successes
	for i := 0; i < 50; i++ {
		m.Record(false, time.Second)
	}
	for i := 0; i < 50; i++ {
		m.Record(true, 100*time.Millisecond)
	}
	stats := m.Stats()
	assert.Equal(t, 0.0, stats.ErrorRate)
	assert.Equal(t, StatusHealthy, m.AssessHealth())
}

func TestRecommendedStrategy(t *testing.T) {
	healthy := RecommendedStrategy(StatusHealthy)
	warning := RecommendedStrategy(StatusWarning)
	critical := RecommendedStrategy(StatusCritical)

	assert.Greater(t, healthy.BatchSize, warning.BatchSize)
	assert.Greater(t, warning.BatchSize, critical.BatchSize)
	assert.Less(t, healthy.Interval, warning.Interval)
	assert.Less(t, warning.Interval, critical.Interval)
	assert.Equal(t, 1, critical.Concurrency)
	assert.Equal(t, 1.0, healthy.Aggressiveness)
}
