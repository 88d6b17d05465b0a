// Package scheduler tracks the timers armed by the tracker so a page teardown
// can cancel all of them at once.
package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timers is a set of pending clock callbacks.
type Timers struct {
	clock  clockwork.Clock
	mu     sync.Mutex
	next   uint64
	timers map[uint64]clockwork.Timer
	closed bool
}

func NewTimers(clock clockwork.Clock) *Timers {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Timers{
		clock:  clock,
		timers: make(map[uint64]clockwork.Timer),
	}
}

// Clock returns the clock the timers run on.
func (t *Timers) Clock() clockwork.Clock {
	return t.clock
}

// AfterFunc runs fn once after d. The returned cancel func is safe to call
// after the timer fired. Returns a no-op cancel once the set is stopped.
func (t *Timers) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return func() {}
	}

	t.next++
	id := t.next

	t.timers[id] = t.clock.AfterFunc(d, func() {
		if !t.release(id) {
			return
		}

		fn()
	})

	return func() {
		t.mu.Lock()
		timer, ok := t.timers[id]
		delete(t.timers, id)
		t.mu.Unlock()

		if ok {
			timer.Stop()
		}
	}
}

// release removes a fired timer; false means it was cancelled in the meantime.
func (t *Timers) release(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	_, ok := t.timers[id]
	delete(t.timers, id)

	return ok
}

// Pending returns the number of timers that have neither fired nor been cancelled.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.timers)
}

// StopAll cancels every pending timer and refuses new ones.
func (t *Timers) StopAll() {
	t.mu.Lock()
	timers := t.timers
	t.timers = make(map[uint64]clockwork.Timer)
	t.closed = true
	t.mu.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}
}
