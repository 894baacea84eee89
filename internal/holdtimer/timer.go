// Package holdtimer provides the local countdown for a seat hold.  The
// timer only mirrors the server-declared TTL for display purposes; it
// never flips seat state itself.  When it expires the owning view is
// expected to refresh against server truth.
package holdtimer

import (
	"fmt"
	"sync"
	"time"
)

// Timer counts down a hold's time-to-live in whole seconds and fires
// an expiry callback exactly once per run.  All methods are safe for
// concurrent use; the callback runs outside the timer's lock.
type Timer struct {
	mu       sync.Mutex
	ttl      int
	timeLeft int
	active   bool
	expired  bool
	closed   bool
	onExpire func()
	tick     time.Duration
	stopCh   chan struct{}
}

// New builds a Timer for ttlSeconds.  Negative TTLs are clamped to
// zero; a zero-TTL timer expires on its first tick after Start.  The
// callback may be nil and may be swapped later with SetOnExpire.
func New(ttlSeconds int, onExpire func()) *Timer {
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	return &Timer{
		ttl:      ttlSeconds,
		timeLeft: ttlSeconds,
		onExpire: onExpire,
		tick:     time.Second,
	}
}

// SetOnExpire swaps the expiry callback.  The timer dereferences the
// callback at fire time, so the most recently supplied one always
// wins, even mid-run.
func (t *Timer) SetOnExpire(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// Start begins (or restarts) the countdown from the full TTL.  It
// clears any previous expiry and ticks once per second.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.stopLocked()
	t.active = true
	t.expired = false
	t.timeLeft = t.ttl
	ch := make(chan struct{})
	t.stopCh = ch
	go t.run(ch)
}

// Stop halts the cadence without touching TimeLeft or IsExpired.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Reset stops the timer and restores the full TTL.  It does not start
// a new run.  Calling Reset repeatedly is a no-op after the first.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.timeLeft = t.ttl
	t.expired = false
}

// Close tears the timer down for good.  No callback fires after Close
// returns, and Start becomes a no-op.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.closed = true
}

// stopLocked cancels the current run.  Callers must hold t.mu.
func (t *Timer) stopLocked() {
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
	t.active = false
}

// run drives the tick cadence for one Start.  The ch identity check in
// step guards against a stale goroutine touching a newer run's state.
func (t *Timer) run(ch chan struct{}) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ch:
			return
		case <-ticker.C:
			if t.step(ch) {
				return
			}
		}
	}
}

// step applies one tick.  It returns true when the run is finished,
// either because it expired or because it was superseded.
func (t *Timer) step(ch chan struct{}) bool {
	t.mu.Lock()
	if t.stopCh != ch {
		t.mu.Unlock()
		return true
	}
	if t.timeLeft > 1 {
		t.timeLeft--
		t.mu.Unlock()
		return false
	}
	// The tick that would drop TimeLeft below zero expires the run.
	t.timeLeft = 0
	t.expired = true
	t.active = false
	t.stopCh = nil
	fn := t.onExpire
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

// TimeLeft returns the remaining whole seconds, never negative.
func (t *Timer) TimeLeft() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeLeft
}

// TTL returns the total time-to-live the timer was built with.
func (t *Timer) TTL() int { return t.ttl }

// FormattedTime renders the remaining time as mm:ss.  The minutes
// component is not capped at 59, so 3665 seconds renders as "61:05".
func (t *Timer) FormattedTime() string {
	left := t.TimeLeft()
	return fmt.Sprintf("%02d:%02d", left/60, left%60)
}

// ProgressPercentage reports elapsed progress in [0,100].  A zero-TTL
// timer reports 0 by definition.
func (t *Timer) ProgressPercentage() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ttl == 0 {
		return 0
	}
	p := float64(t.ttl-t.timeLeft) / float64(t.ttl) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// IsActive reports whether a run is in progress.
func (t *Timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// IsExpired reports whether the current run has expired.  Reset and
// Start clear it.
func (t *Timer) IsExpired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}
