package testutil

import (
	"sync"
	"time"
)

// ManualTimer replaces time.After. It records every requested duration
// and only fires when the test says so.
type ManualTimer struct {
	mu        sync.Mutex
	durations []time.Duration
	pending   []chan time.Time
	requested chan time.Duration
}

// NewManualTimer returns a timer that can buffer up to 64 unread requests
// on Requested.
func NewManualTimer() *ManualTimer {
	return &ManualTimer{requested: make(chan time.Duration, 64)}
}

// After records d and returns a channel that fires on Fire.
func (m *ManualTimer) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	m.mu.Lock()
	m.durations = append(m.durations, d)
	m.pending = append(m.pending, ch)
	m.mu.Unlock()
	m.requested <- d
	return ch
}

// Requested delivers each duration passed to After, in order.
func (m *ManualTimer) Requested() <-chan time.Duration {
	return m.requested
}

// Durations returns every duration requested so far.
func (m *ManualTimer) Durations() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.durations))
	copy(out, m.durations)
	return out
}

// Fire expires the most recently requested timer.
// Returns false if no timer was requested yet.
func (m *ManualTimer) Fire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return false
	}
	ch := m.pending[len(m.pending)-1]
	select {
	case ch <- time.Time{}:
	default:
	}
	return true
}
