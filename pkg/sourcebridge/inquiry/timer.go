// Package inquiry – timer.go wraps a one-shot delayed callback used for
// per-session timeouts. A fired timer never re-arms itself; Stop is safe to
// call any number of times, before or after the fire.
package inquiry

import (
	"sync"
	"time"
)

// Timer is a single-shot cancellable timer. The zero value is usable.
type Timer struct {
	mu        sync.Mutex
	timer     *time.Timer
	startedAt time.Time
	running   bool
}

// NewTimer creates an unarmed Timer.
func NewTimer() *Timer {
	return &Timer{}
}

// Start arms the timer to fire fn once after d, recording the arm time.
// Starting an already-running timer replaces the pending fire.
func (t *Timer) Start(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}

	t.startedAt = time.Now()
	t.running = true
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		fn()
	})
}

// Stop cancels the pending fire if not yet fired. Idempotent: stopping a
// stopped or already-fired timer is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.running = false
}

// Elapsed returns the wall-clock time since Start, or 0 if never started.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.startedAt.IsZero() {
		return 0
	}
	return time.Since(t.startedAt)
}

// IsRunning reports whether a fire is still pending.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
