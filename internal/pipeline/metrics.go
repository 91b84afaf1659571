package pipeline

import (
	"sync"
	"time"
)

// Metrics counts cycle outcomes. Skips and drops are normal operation
// under a slow detector, so they are tracked rather than logged per
// occurrence.
type Metrics struct {
	mu sync.Mutex

	ticksDropped   int64 // tick arrived while a cycle was in flight
	skipsNoFrame   int64 // capture had nothing ready
	skipsStatic    int64 // frame content unchanged since last cycle
	failures       int64
	successes      int64
	clears         int64 // successful cycles with nothing to obscure
	totalDuration  time.Duration
}

// MetricsSnapshot is a point-in-time copy safe to hand to logging.
type MetricsSnapshot struct {
	TicksDropped   int64
	SkippedNoFrame int64
	SkippedStatic  int64
	Failed         int64
	Succeeded      int64
	Cleared        int64
	AvgCycle       time.Duration
}

func (m *Metrics) tickDropped() {
	m.mu.Lock()
	m.ticksDropped++
	m.mu.Unlock()
}

func (m *Metrics) skippedNoFrame() {
	m.mu.Lock()
	m.skipsNoFrame++
	m.mu.Unlock()
}

func (m *Metrics) skippedStatic() {
	m.mu.Lock()
	m.skipsStatic++
	m.mu.Unlock()
}

func (m *Metrics) failed() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

func (m *Metrics) succeeded(cleared bool, elapsed time.Duration) {
	m.mu.Lock()
	m.successes++
	if cleared {
		m.clears++
	}
	m.totalDuration += elapsed
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TicksDropped:   m.ticksDropped,
		SkippedNoFrame: m.skipsNoFrame,
		SkippedStatic:  m.skipsStatic,
		Failed:         m.failures,
		Succeeded:      m.successes,
		Cleared:        m.clears,
	}
	if m.successes > 0 {
		snap.AvgCycle = m.totalDuration / time.Duration(m.successes)
	}
	return snap
}
