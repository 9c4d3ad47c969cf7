package testutil

import (
	"context"
	"fmt"
	"sync"
)

// CallLog is a shared, ordered record of calls made by effects and
// notifiers during a test.
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *CallLog) Add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *CallLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Probe is an effect that records every element it applies.
//
// Hooks registered with FailOnce or Before fire the first time their
// element is reached and are then discarded, which mirrors a transient
// fault that a resumption gets past.
type Probe[E comparable] struct {
	name string
	log  *CallLog

	mu       sync.Mutex
	applied  []E
	attempts int
	failures map[E]error
	hooks    map[E]func()
}

// NewProbe returns a probe that writes "name(elem)" to log on success.
// log may be nil.
func NewProbe[E comparable](name string, log *CallLog) *Probe[E] {
	return &Probe[E]{
		name:     name,
		log:      log,
		failures: make(map[E]error),
		hooks:    make(map[E]func()),
	}
}

// Name lets the engine label the probe in journals and digests.
func (p *Probe[E]) Name() string {
	return p.name
}

// FailOnce makes the next application to elem return err.
func (p *Probe[E]) FailOnce(elem E, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[elem] = err
}

// Before runs fn once, just before the next application to elem.
func (p *Probe[E]) Before(elem E, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks[elem] = fn
}

func (p *Probe[E]) Apply(ctx context.Context, elem E) error {
	p.mu.Lock()
	p.attempts++
	hook := p.hooks[elem]
	delete(p.hooks, elem)
	err, fail := p.failures[elem]
	delete(p.failures, elem)
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		p.log.Add("%s(%v) failed", p.name, elem)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.applied = append(p.applied, elem)
	p.mu.Unlock()
	p.log.Add("%s(%v)", p.name, elem)
	return nil
}

// Applied returns successfully applied elements in order.
func (p *Probe[E]) Applied() []E {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]E, len(p.applied))
	copy(out, p.applied)
	return out
}

// Attempts counts every call to Apply, failed ones included.
func (p *Probe[E]) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}
