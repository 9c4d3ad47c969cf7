// Package sleep implements cooperative pauses.
//
// A Controller reports whether work should pause and for how long. The
// engine consults it before every phase transition and before every
// element. Controllers that also implement Signaler wake sleepers as soon
// as their status changes; others are re-read only when an interval ends.
package sleep

import (
	"sync"
	"time"
)

// Status is a snapshot of a controller's state.
type Status struct {
	ShouldSleep bool
	Interval    time.Duration
}

// Controller supplies the current sleep status.
type Controller interface {
	Status() Status
}

// Signaler is implemented by controllers that announce status changes.
// The returned channel is closed on the next change.
type Signaler interface {
	Changed() <-chan struct{}
}

type never struct{}

func (never) Status() Status { return Status{} }

// Never is a controller that never asks for sleep.
var Never Controller = never{}

// Switch is a mutable Controller. Every Set or Wake closes the channel
// handed out by Changed and replaces it, waking all current sleepers.
type Switch struct {
	mu      sync.Mutex
	status  Status
	changed chan struct{}
}

// NewSwitch creates a Switch with an initial status.
func NewSwitch(initial Status) *Switch {
	return &Switch{status: initial, changed: make(chan struct{})}
}

func (s *Switch) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Switch) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Set replaces the status and wakes sleepers.
func (s *Switch) Set(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.signalLocked()
}

// Pause is Set(Status{ShouldSleep: true, Interval: d}).
func (s *Switch) Pause(d time.Duration) {
	s.Set(Status{ShouldSleep: true, Interval: d})
}

// Resume clears ShouldSleep and keeps the interval.
func (s *Switch) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.ShouldSleep = false
	s.signalLocked()
}

// Wake signals sleepers without changing the status. Sleepers re-read
// the status and carry on with the remainder of their interval.
func (s *Switch) Wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signalLocked()
}

func (s *Switch) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
