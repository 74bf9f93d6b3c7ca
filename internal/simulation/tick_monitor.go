package simulation

import (
	"sync"
	"time"
)

// FrameStats summarises observed frame durations.
type FrameStats struct {
	Frames   int
	Average  time.Duration
	Max      time.Duration
	Last     time.Duration
	Overruns int
}

// Headroom returns how much of the frame budget the average frame leaves unused.
func (s FrameStats) Headroom(budget time.Duration) time.Duration {
	if s.Frames == 0 {
		return budget
	}
	return budget - s.Average
}

// TickMonitor accumulates frame timing so operators can tell when the loop falls behind.
type TickMonitor struct {
	mu       sync.Mutex
	budget   time.Duration
	frames   int
	total    time.Duration
	max      time.Duration
	last     time.Duration
	overruns int
	observer func(time.Duration)
}

// NewTickMonitor constructs a monitor that counts frames longer than budget as overruns.
func NewTickMonitor(budget time.Duration) *TickMonitor {
	return &TickMonitor{budget: budget}
}

// OnObserve forwards every sample to fn, e.g. a histogram.
func (m *TickMonitor) OnObserve(fn func(time.Duration)) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.observer = fn
	m.mu.Unlock()
}

// Observe records the duration of a completed frame.
func (m *TickMonitor) Observe(d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.mu.Lock()
	m.frames++
	m.total += d
	if d > m.max {
		m.max = d
	}
	m.last = d
	if m.budget > 0 && d > m.budget {
		m.overruns++
	}
	fn := m.observer
	m.mu.Unlock()
	if fn != nil {
		fn(d)
	}
}

// Stats returns a copy of the aggregated statistics.
func (m *TickMonitor) Stats() FrameStats {
	if m == nil {
		return FrameStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := FrameStats{Frames: m.frames, Max: m.max, Last: m.last, Overruns: m.overruns}
	if m.frames > 0 {
		stats.Average = m.total / time.Duration(m.frames)
	}
	return stats
}

// Reset clears the accumulated statistics.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.frames, m.total, m.max, m.last, m.overruns = 0, 0, 0, 0, 0
	m.mu.Unlock()
}
