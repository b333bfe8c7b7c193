package eventloop

import (
	"testing"
	"time"

	"github.com/unifyhq/botsync/internal/clock"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newInlineTimers() (*clock.FakeClock, *Timers) {
	clk := clock.Fake(epoch)
	return clk, NewTimers(NewInline(clk))
}

func TestTimers_ScheduleIsNoOpWhilePending(t *testing.T) {
	clk, timers := newInlineTimers()

	calls := 0
	if !timers.Schedule(PurposeReconnect, 5*time.Second, func() { calls++ }) {
		t.Fatal("first Schedule() = false, want true")
	}
	if timers.Schedule(PurposeReconnect, time.Second, func() { calls++ }) {
		t.Error("second Schedule() = true, want false while pending")
	}

	clk.Advance(time.Second)
	if calls != 0 {
		t.Errorf("calls = %d after 1s, want 0 (first schedule wins)", calls)
	}

	clk.Advance(4 * time.Second)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if timers.Pending(PurposeReconnect) {
		t.Error("reconnect still pending after firing")
	}
}

func TestTimers_PurposesAreIndependent(t *testing.T) {
	clk, timers := newInlineTimers()

	var fired []Purpose
	timers.Schedule(PurposeReconnect, time.Second, func() { fired = append(fired, PurposeReconnect) })
	timers.Schedule(PurposeFallback, 2*time.Second, func() { fired = append(fired, PurposeFallback) })

	if timers.Len() != 2 {
		t.Errorf("Len() = %d, want 2", timers.Len())
	}

	clk.Advance(2 * time.Second)
	if len(fired) != 2 || fired[0] != PurposeReconnect || fired[1] != PurposeFallback {
		t.Errorf("fired = %v, want [reconnect fallback]", fired)
	}
}

func TestTimers_CancelIsIdempotent(t *testing.T) {
	clk, timers := newInlineTimers()

	fired := false
	timers.Schedule(PurposeRefresh, time.Second, func() { fired = true })

	if !timers.Cancel(PurposeRefresh) {
		t.Error("first Cancel() = false, want true")
	}
	if timers.Cancel(PurposeRefresh) {
		t.Error("second Cancel() = true, want false")
	}

	clk.Advance(time.Minute)
	if fired {
		t.Error("cancelled timer fired")
	}
	if timers.Cancel(PurposeRefresh) {
		t.Error("Cancel() after expiry window = true, want false")
	}
}

func TestTimers_RescheduleAfterCancel(t *testing.T) {
	clk, timers := newInlineTimers()

	first, second := 0, 0
	timers.Schedule(PurposeKeepalive, time.Second, func() { first++ })
	timers.Cancel(PurposeKeepalive)
	timers.Schedule(PurposeKeepalive, 2*time.Second, func() { second++ })

	clk.Advance(3 * time.Second)
	if first != 0 || second != 1 {
		t.Errorf("first = %d, second = %d, want 0 and 1", first, second)
	}
}

func TestTimers_StaleExpiryDiscarded(t *testing.T) {
	// Simulates an expiry that was already queued on the loop when the
	// purpose was cancelled and rescheduled.
	loop := NewInline(clock.Fake(epoch))
	timers := NewTimers(loop)

	var stale func()
	fake := &capturingClock{Clock: clock.Fake(epoch), capture: func(f func()) { stale = f }}
	loop.clock = fake

	calls := 0
	timers.Schedule(PurposeRefresh, time.Second, func() { calls++ })
	timers.Cancel(PurposeRefresh)
	timers.Schedule(PurposeRefresh, time.Second, func() { calls += 10 })

	stale()
	if calls != 0 {
		t.Errorf("calls = %d, want 0 after stale expiry", calls)
	}
	if !timers.Pending(PurposeRefresh) {
		t.Error("replacement timer no longer pending")
	}
}

func TestTimers_CancelAll(t *testing.T) {
	clk, timers := newInlineTimers()

	fired := 0
	timers.Schedule(PurposeReconnect, time.Second, func() { fired++ })
	timers.Schedule(PurposeKeepalive, time.Second, func() { fired++ })
	timers.CancelAll()

	clk.Advance(time.Minute)
	if fired != 0 {
		t.Errorf("fired = %d, want 0", fired)
	}
	if timers.Len() != 0 {
		t.Errorf("Len() = %d, want 0", timers.Len())
	}
}

// capturingClock records the first AfterFunc callback instead of
// scheduling it.
type capturingClock struct {
	clock.Clock
	capture func(func())
}

func (c *capturingClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	if c.capture != nil {
		c.capture(f)
		c.capture = nil
	}
	return c.Clock.AfterFunc(d, f)
}
