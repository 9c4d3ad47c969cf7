package engine

import "sync/atomic"

// Sequencer hands out strictly increasing logical sequence numbers.
// Implemented by Clock and by resettable test clocks.
type Sequencer interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical clock.
//
// Events are stamped with Clock.Next(), never with wall-clock time, so a
// recorded run orders the same way every time it is read back. Failure ids
// come from a Clock of their own.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that continues after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last number handed out without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
