package sleep

import (
	"context"
	"log/slog"
	"time"
)

// Sleeper blocks while its Controller asks for sleep.
//
// After and Now default to time.After and time.Now; tests replace them to
// observe requested intervals without waiting.
type Sleeper struct {
	Controller Controller
	After      func(time.Duration) <-chan time.Time
	Now        func() time.Time
}

// NewSleeper returns a Sleeper over c using the real clock.
func NewSleeper(c Controller) *Sleeper {
	return &Sleeper{Controller: c}
}

// Wait returns once the controller stops asking for sleep or ctx is done.
// It reports whether it slept at all.
//
// While sleeping, a status change wakes the sleeper early. If sleep is no
// longer requested Wait returns; if the interval changed Wait sleeps for
// the new interval; otherwise it sleeps for what is left of the current
// one. When an interval runs out the status is read again and a full new
// interval starts if sleep is still requested.
//
// A done ctx ends the wait without error. Cancellation is for the caller
// to observe.
func (s *Sleeper) Wait(ctx context.Context) bool {
	if s == nil || s.Controller == nil {
		return false
	}
	changed := s.changed()
	status := s.Controller.Status()
	if !status.ShouldSleep {
		return false
	}

	remaining := status.Interval
	for status.ShouldSleep {
		if remaining <= 0 && changed == nil {
			// nothing could ever wake us
			slog.Warn("sleep requested without interval or change signal")
			return true
		}
		started := s.now()
		var timer <-chan time.Time
		if remaining > 0 {
			timer = s.after(remaining)
		}

		select {
		case <-ctx.Done():
			return true
		case <-timer:
			changed = s.changed()
			status = s.Controller.Status()
			remaining = status.Interval
		case <-changed:
			changed = s.changed()
			next := s.Controller.Status()
			switch {
			case !next.ShouldSleep:
				status = next
			case next.Interval != status.Interval:
				slog.Debug("sleep interval changed", "from", status.Interval, "to", next.Interval)
				status = next
				remaining = next.Interval
			default:
				remaining -= s.now().Sub(started)
				if remaining <= 0 {
					remaining = status.Interval
				}
			}
		}
	}
	return true
}

func (s *Sleeper) changed() <-chan struct{} {
	if sig, ok := s.Controller.(Signaler); ok {
		return sig.Changed()
	}
	return nil
}

func (s *Sleeper) after(d time.Duration) <-chan time.Time {
	if s.After != nil {
		return s.After(d)
	}
	return time.After(d)
}

func (s *Sleeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
