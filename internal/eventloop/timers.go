package eventloop

import (
	"time"

	"github.com/unifyhq/botsync/internal/clock"
)

// Purpose keys a slot in a Timers table.
type Purpose string

const (
	PurposeReconnect Purpose = "reconnect"
	PurposeKeepalive Purpose = "keepalive"
	PurposeFallback  Purpose = "fallback"
	PurposeRefresh   Purpose = "refresh"
)

// Timers holds at most one pending timer per purpose. It must only be
// used from the loop.
type Timers struct {
	loop    *Loop
	pending map[Purpose]*timerEntry
}

type timerEntry struct {
	timer clock.Timer
}

// NewTimers creates an empty table whose timers fire on loop.
func NewTimers(loop *Loop) *Timers {
	return &Timers{
		loop:    loop,
		pending: make(map[Purpose]*timerEntry),
	}
}

// Schedule arranges for fn to run on the loop after d. If a timer for p
// is already pending the call is a no-op and returns false.
func (t *Timers) Schedule(p Purpose, d time.Duration, fn func()) bool {
	if _, ok := t.pending[p]; ok {
		return false
	}

	e := &timerEntry{}
	t.pending[p] = e
	e.timer = t.loop.AfterFunc(d, func() {
		// A cancelled or superseded expiry may already be queued.
		if t.pending[p] != e {
			return
		}
		delete(t.pending, p)
		fn()
	})
	return true
}

// Cancel stops the pending timer for p. Cancelling nothing is a no-op.
func (t *Timers) Cancel(p Purpose) bool {
	e, ok := t.pending[p]
	if !ok {
		return false
	}
	delete(t.pending, p)
	if e.timer != nil {
		e.timer.Stop()
	}
	return true
}

// Pending reports whether a timer for p is scheduled.
func (t *Timers) Pending(p Purpose) bool {
	_, ok := t.pending[p]
	return ok
}

// Len returns the number of pending timers.
func (t *Timers) Len() int { return len(t.pending) }

// CancelAll stops every pending timer.
func (t *Timers) CancelAll() {
	for p := range t.pending {
		t.Cancel(p)
	}
}
