package strategy

import (
	"sync"
	"time"
)

// Timer is the external scheduling contract spec.md §6 names: single-shot
// or periodic, firing once the owning strategy observes it on its own
// cooperative loop. The reference C++ implementation runs on a single
// event-loop thread where a libuv timer's callback *is* the next loop
// iteration; Go has no equivalent single-threaded loop, so this
// implementation arms a real time.Timer on its own goroutine and only
// raises a flag — the owning strategy discovers the fire by calling
// Fired() from inside its own Tick, which is the same "observe on next
// tick" rule spec.md §4.4 already states explicitly for the WAIT state and
// this implementation applies uniformly.
type Timer struct {
	mu      sync.Mutex
	t       *time.Timer
	ticker  *time.Ticker
	fired   bool
	stopped bool
}

// NewTimer returns a stopped Timer.
func NewTimer() *Timer {
	return &Timer{stopped: true}
}

// Start arms the timer to fire after delay, and then every period
// thereafter if period > 0. Starting an already-running timer first stops
// it, matching the Timer contract's idempotence requirement.
func (t *Timer) Start(delay, period time.Duration) {
	t.Stop()
	t.mu.Lock()
	t.stopped = false
	t.fired = false
	t.mu.Unlock()

	if period > 0 {
		ticker := time.NewTicker(delay)
		t.mu.Lock()
		t.ticker = ticker
		t.mu.Unlock()
		go func() {
			first := true
			for range ticker.C {
				t.mu.Lock()
				t.fired = true
				t.mu.Unlock()
				if first {
					first = false
					ticker.Reset(period)
				}
			}
		}()
		return
	}

	timer := time.AfterFunc(delay, func() {
		t.mu.Lock()
		t.fired = true
		t.mu.Unlock()
	})
	t.mu.Lock()
	t.t = timer
	t.mu.Unlock()
}

// Stop cancels any pending fire. Idempotent.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	t.stopped = true
	t.fired = false
}

// Fired reports whether the timer has fired since the last call to Fired,
// clearing the flag for single-shot timers (periodic timers keep firing).
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.fired {
		return false
	}
	t.fired = false
	return true
}
