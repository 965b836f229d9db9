package resilience

import (
	"sync"
	"time"
)

// HealthStatus is the aggregated verdict over recent call outcomes.
type HealthStatus int

const (
	StatusHealthy HealthStatus = iota
	StatusWarning
	StatusCritical
)

func (s HealthStatus) String() string {
	switch s {
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	}
	return "healthy"
}

type healthRecord struct {
	success bool
	latency time.Duration
	at      time.Time
}

const (
	healthHistorySize  = 100
	healthSampleWindow = 50
)

// HealthStats summarises the most recent call outcomes.
type HealthStats struct {
	ErrorRate  float64       `json:"errorRate"`
	AvgLatency time.Duration `json:"avgLatency"`
	Uptime     float64       `json:"uptime"`
	Throughput float64       `json:"throughputPerMin"`
}

// HealthMonitor keeps a bounded history of call outcomes and turns the
// last 50 of them into a health verdict and a recommended throughput
// strategy.
type HealthMonitor struct {
	mu      sync.Mutex
	history []healthRecord
	now     func() time.Time
}

// NewHealthMonitor creates an empty monitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{now: time.Now}
}

// Record appends a call outcome.
func (m *HealthMonitor) Record(success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, healthRecord{success: success, latency: latency, at: m.now()})
	if len(m.history) > healthHistorySize {
		m.history = m.history[len(m.history)-healthHistorySize:]
	}
}

// Stats computes error rate, mean latency, uptime and throughput over
// the most recent sample window.
func (m *HealthMonitor) Stats() HealthStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked()
}

func (m *HealthMonitor) statsLocked() HealthStats {
	recent := m.history
	if len(recent) > healthSampleWindow {
		recent = recent[len(recent)-healthSampleWindow:]
	}
	if len(recent) == 0 {
		return HealthStats{Uptime: 1}
	}

	var failures int
	var total time.Duration
	for _, r := range recent {
		if !r.success {
			failures++
		}
		total += r.latency
	}
	stats := HealthStats{
		ErrorRate:  float64(failures) / float64(len(recent)),
		AvgLatency: total / time.Duration(len(recent)),
	}
	stats.Uptime = 1 - stats.ErrorRate

	span := m.now().Sub(recent[0].at)
	if span > 0 {
		stats.Throughput = float64(len(recent)) / span.Minutes()
	}
	return stats
}

// AssessHealth maps recent stats onto healthy/warning/critical using
// fixed thresholds.
func (m *HealthMonitor) AssessHealth() HealthStatus {
	stats := m.Stats()
	switch {
	case stats.ErrorRate > 0.15 || stats.AvgLatency > 5000*time.Millisecond || stats.Uptime < 0.90:
		return StatusCritical
	case stats.ErrorRate > 0.05 || stats.AvgLatency > 2000*time.Millisecond || stats.Uptime < 0.95:
		return StatusWarning
	}
	return StatusHealthy
}

// Strategy is the throughput posture recommended for a health status.
type Strategy struct {
	BatchSize      int           `json:"batchSize"`
	Interval       time.Duration `json:"interval"`
	Concurrency    int           `json:"concurrency"`
	Aggressiveness float64       `json:"aggressiveness"`
}

// RecommendedStrategy maps a health status to the throttle tuple used
// by the data orchestrator.
func RecommendedStrategy(status HealthStatus) Strategy {
	switch status {
	case StatusCritical:
		return Strategy{BatchSize: 5, Interval: 60 * time.Second, Concurrency: 1, Aggressiveness: 0.3}
	case StatusWarning:
		return Strategy{BatchSize: 10, Interval: 30 * time.Second, Concurrency: 2, Aggressiveness: 0.6}
	}
	return Strategy{BatchSize: 20, Interval: 10 * time.Second, Concurrency: 3, Aggressiveness: 1.0}
}
