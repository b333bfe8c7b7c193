package connection

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/unifyhq/botsync/internal/auth"
	"github.com/unifyhq/botsync/internal/clock"
	"github.com/unifyhq/botsync/internal/eventloop"
)

type managerFixture struct {
	clk       *clock.FakeClock
	timers    *eventloop.Timers
	transport *fakeTransport
	mgr       *Manager
	changes   []State
}

func newManagerFixture(tokens auth.TokenProvider) *managerFixture {
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	loop := eventloop.NewInline(clk)
	timers := eventloop.NewTimers(loop)
	transport := &fakeTransport{}

	f := &managerFixture{
		clk:       clk,
		timers:    timers,
		transport: transport,
		mgr:       NewManager(DefaultConfig(), loop, timers, transport, tokens, nil),
	}
	f.mgr.OnStateChange(func(prev, next State) {
		f.changes = append(f.changes, next)
	})
	return f
}

func TestClassify(t *testing.T) {
	tests := []struct {
		reason CloseReason
		want   Disposition
	}{
		{ReasonServerDisconnect, DispositionTransient},
		{ReasonPingTimeout, DispositionTransient},
		{ReasonTransportClose, DispositionTransient},
		{ReasonClientDisconnect, DispositionIntentional},
		{ReasonTransportError, DispositionUnknown},
		{ReasonParseError, DispositionUnknown},
		{"close 4000", DispositionUnknown},
		{"", DispositionUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.reason); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.reason, got, tt.want)
		}
	}
}

func TestManager_ConnectIsIdempotent(t *testing.T) {
	f := newManagerFixture(auth.StaticToken("tok"))

	if err := f.mgr.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := f.mgr.Connect(); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if len(f.transport.sessions) != 1 {
		t.Fatalf("sessions opened = %d, want 1", len(f.transport.sessions))
	}
	if f.transport.last().token != "tok" {
		t.Errorf("token = %q, want %q", f.transport.last().token, "tok")
	}
	if f.mgr.State() != StateConnecting {
		t.Errorf("State = %v, want connecting", f.mgr.State())
	}

	f.transport.last().open()
	if !f.mgr.IsConnected() {
		t.Fatal("expected connected")
	}

	f.mgr.Connect()
	if len(f.transport.sessions) != 1 {
		t.Errorf("sessions opened after connected Connect = %d, want 1", len(f.transport.sessions))
	}
}

func TestManager_MissingToken(t *testing.T) {
	f := newManagerFixture(auth.StaticToken(""))

	err := f.mgr.Connect()
	if !errors.Is(err, ErrAuthMissing) {
		t.Fatalf("Connect error = %v, want ErrAuthMissing", err)
	}
	if !errors.Is(err, auth.ErrNoToken) {
		t.Errorf("Connect error should wrap auth.ErrNoToken, got %v", err)
	}
	if len(f.transport.sessions) != 0 {
		t.Errorf("sessions opened = %d, want 0", len(f.transport.sessions))
	}
	if f.mgr.State() != StateDisconnected {
		t.Errorf("State = %v, want disconnected", f.mgr.State())
	}
	if !errors.Is(f.mgr.LastError(), ErrAuthMissing) {
		t.Errorf("LastError = %v, want ErrAuthMissing", f.mgr.LastError())
	}
	if f.timers.Pending(eventloop.PurposeReconnect) {
		t.Error("auth failure must not schedule a reconnect")
	}
}

func TestManager_HandshakeFailureRetries(t *testing.T) {
	f := newManagerFixture(auth.StaticToken("tok"))
	f.mgr.Connect()

	f.transport.last().fail(errors.New("401"))
	if f.mgr.State() != StateErrored {
		t.Fatalf("State = %v, want errored", f.mgr.State())
	}
	if !errors.Is(f.mgr.LastError(), ErrHandshakeFailed) {
		t.Errorf("LastError = %v, want ErrHandshakeFailed", f.mgr.LastError())
	}
	if !f.timers.Pending(eventloop.PurposeReconnect) {
		t.Fatal("expected reconnect scheduled")
	}

	// No retry before the delay.
	f.clk.Advance(9 * time.Second)
	if len(f.transport.sessions) != 1 {
		t.Fatalf("sessions = %d before delay, want 1", len(f.transport.sessions))
	}

	f.clk.Advance(time.Second)
	if len(f.transport.sessions) != 2 {
		t.Fatalf("sessions = %d after delay, want 2", len(f.transport.sessions))
	}
	if f.mgr.State() != StateConnecting {
		t.Errorf("State = %v, want connecting", f.mgr.State())
	}

	f.transport.last().open()
	if !f.mgr.IsConnected() || f.mgr.LastError() != nil {
		t.Errorf("after reconnect: connected=%v lastErr=%v", f.mgr.IsConnected(), f.mgr.LastError())
	}
}

func TestManager_TransientDropReconnectsOnce(t *testing.T) {
	for _, reason := range []CloseReason{ReasonServerDisconnect, ReasonPingTimeout, ReasonTransportClose} {
		t.Run(string(reason), func(t *testing.T) {
			f := newManagerFixture(auth.StaticToken("tok"))
			f.mgr.Connect()
			f.transport.last().open()

			f.transport.last().drop(reason)
			if f.mgr.State() != StateDisconnected {
				t.Fatalf("State = %v, want disconnected", f.mgr.State())
			}
			if f.timers.Pending(eventloop.PurposeKeepalive) {
				t.Error("keepalive should stop on drop")
			}
			if got := f.mgr.Stats().ReconnectsScheduled; got != 1 {
				t.Errorf("ReconnectsScheduled = %d, want 1", got)
			}

			f.clk.Advance(5 * time.Second)
			if len(f.transport.sessions) != 2 {
				t.Fatalf("sessions = %d, want 2", len(f.transport.sessions))
			}
			if f.transport.live() != 1 {
				t.Errorf("live sessions = %d, want 1", f.transport.live())
			}
		})
	}
}

func TestManager_NoReconnectOnIntentionalOrUnknown(t *testing.T) {
	for _, reason := range []CloseReason{ReasonClientDisconnect, ReasonTransportError, "close 4001"} {
		t.Run(string(reason), func(t *testing.T) {
			f := newManagerFixture(auth.StaticToken("tok"))
			f.mgr.Connect()
			f.transport.last().open()

			f.transport.last().drop(reason)
			if f.timers.Pending(eventloop.PurposeReconnect) {
				t.Error("unexpected reconnect scheduled")
			}

			f.clk.Advance(time.Minute)
			if len(f.transport.sessions) != 1 {
				t.Errorf("sessions = %d, want 1", len(f.transport.sessions))
			}
		})
	}
}

func TestManager_ReconnectAbandonedWithoutToken(t *testing.T) {
	tok := auth.StaticToken("tok")
	var current auth.TokenProvider = tok
	f := newManagerFixture(auth.TokenFunc(func() (string, error) { return current.Token() }))

	f.mgr.Connect()
	f.transport.last().open()
	f.transport.last().drop(ReasonTransportClose)

	current = auth.StaticToken("")
	f.clk.Advance(5 * time.Second)

	if len(f.transport.sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(f.transport.sessions))
	}
	if f.mgr.State() != StateDisconnected {
		t.Errorf("State = %v, want disconnected", f.mgr.State())
	}
	if !errors.Is(f.mgr.LastError(), ErrAuthMissing) {
		t.Errorf("LastError = %v, want ErrAuthMissing", f.mgr.LastError())
	}
	if f.timers.Pending(eventloop.PurposeReconnect) {
		t.Error("missing token must not reschedule")
	}
}

func TestManager_Keepalive(t *testing.T) {
	f := newManagerFixture(auth.StaticToken("tok"))
	f.mgr.Connect()
	s := f.transport.last()
	s.open()

	f.clk.Advance(59 * time.Second)
	if s.count(CmdPing) != 0 {
		t.Fatalf("pings before interval = %d, want 0", s.count(CmdPing))
	}
	f.clk.Advance(time.Second)
	if s.count(CmdPing) != 1 {
		t.Fatalf("pings = %d, want 1", s.count(CmdPing))
	}
	f.clk.Advance(2 * time.Minute)
	if s.count(CmdPing) != 3 {
		t.Errorf("pings = %d, want 3", s.count(CmdPing))
	}

	f.mgr.Disconnect()
	f.clk.Advance(5 * time.Minute)
	if s.count(CmdPing) != 3 {
		t.Errorf("pings after disconnect = %d, want 3", s.count(CmdPing))
	}
}

func TestManager_DisconnectFromAnyState(t *testing.T) {
	t.Run("connecting", func(t *testing.T) {
		f := newManagerFixture(auth.StaticToken("tok"))
		f.mgr.Connect()
		s := f.transport.last()

		f.mgr.Disconnect()
		if !s.closed {
			t.Error("session not closed")
		}
		if f.mgr.State() != StateDisconnected {
			t.Errorf("State = %v, want disconnected", f.mgr.State())
		}

		// A late open from the superseded session is closed and ignored.
		s.closed = false
		s.open()
		if !s.closed {
			t.Error("late session should be closed")
		}
		if f.mgr.IsConnected() {
			t.Error("late open must not connect")
		}
	})

	t.Run("errored with reconnect pending", func(t *testing.T) {
		f := newManagerFixture(auth.StaticToken("tok"))
		f.mgr.Connect()
		f.transport.last().fail(errors.New("boom"))

		f.mgr.Disconnect()
		if f.timers.Len() != 0 {
			t.Errorf("pending timers = %d, want 0", f.timers.Len())
		}
		f.clk.Advance(time.Minute)
		if len(f.transport.sessions) != 1 {
			t.Errorf("sessions = %d, want 1", len(f.transport.sessions))
		}
	})

	t.Run("connected", func(t *testing.T) {
		f := newManagerFixture(auth.StaticToken("tok"))
		f.mgr.Connect()
		s := f.transport.last()
		s.open()

		f.mgr.Disconnect()
		if !s.closed {
			t.Error("session not closed")
		}
		// The transport reports the local close afterwards; it is ignored.
		s.handler.OnClose(ReasonClientDisconnect)
		if f.timers.Len() != 0 {
			t.Errorf("pending timers = %d, want 0", f.timers.Len())
		}
	})
}

func TestManager_ExplicitConnectCancelsPendingReconnect(t *testing.T) {
	f := newManagerFixture(auth.StaticToken("tok"))
	f.mgr.Connect()
	f.transport.last().fail(errors.New("boom"))

	f.mgr.Connect()
	if f.timers.Pending(eventloop.PurposeReconnect) {
		t.Error("reconnect should be cancelled by explicit connect")
	}
	f.clk.Advance(time.Minute)
	if len(f.transport.sessions) != 2 {
		t.Errorf("sessions = %d, want 2", len(f.transport.sessions))
	}
}

func TestManager_StaleCallbacksIgnored(t *testing.T) {
	f := newManagerFixture(auth.StaticToken("tok"))
	f.mgr.Connect()
	old := f.transport.last()
	old.fail(errors.New("boom"))

	f.clk.Advance(10 * time.Second)
	cur := f.transport.last()
	cur.open()

	// Callbacks from the failed attempt must not disturb the live session.
	old.handler.OnClose(ReasonTransportClose)
	old.handler.OnOpenError(errors.New("late"))
	if !f.mgr.IsConnected() {
		t.Errorf("State = %v, want connected", f.mgr.State())
	}
	if f.timers.Pending(eventloop.PurposeReconnect) {
		t.Error("stale callback scheduled a reconnect")
	}
}

func TestManager_LateOpenOfSupersededSessionIsClosed(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	loop := eventloop.NewInline(clk)
	transport := &fakeTransport{}
	mgr := NewManager(DefaultConfig(), loop, eventloop.NewTimers(loop), transport, auth.StaticToken("tok"), logger)

	mgr.Connect()
	old := transport.last()
	mgr.Disconnect()

	old.closed = false
	old.failClose = true
	old.open()

	if !old.closed {
		t.Error("superseded session not closed on late open")
	}
	if mgr.State() != StateDisconnected {
		t.Errorf("State = %v, want disconnected", mgr.State())
	}
	if !strings.Contains(logs.String(), "close superseded session") {
		t.Errorf("close error not logged: %q", logs.String())
	}
}

func TestManager_EventsAndEmit(t *testing.T) {
	f := newManagerFixture(auth.StaticToken("tok"))

	var got []string
	f.mgr.SetEventSink(func(name string, data json.RawMessage, _ time.Time) {
		got = append(got, name+":"+string(data))
	})

	if err := f.mgr.Emit(CmdJoinRoom, "bot-1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit while disconnected = %v, want ErrNotConnected", err)
	}

	f.mgr.Connect()
	s := f.transport.last()
	s.push("bot-log", `{}`) // before open: dropped
	s.open()
	s.push("bot-log", `{"botId":"a"}`)
	s.push("pong", `{}`)

	if len(got) != 2 || got[0] != `bot-log:{"botId":"a"}` || got[1] != "pong:{}" {
		t.Errorf("events = %v", got)
	}

	if err := f.mgr.Emit(CmdJoinRoom, "bot-1"); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if s.count(CmdJoinRoom) != 1 {
		t.Errorf("join commands = %d, want 1", s.count(CmdJoinRoom))
	}
}

func TestManager_StateChanges(t *testing.T) {
	f := newManagerFixture(auth.StaticToken("tok"))
	f.mgr.Connect()
	f.transport.last().fail(errors.New("boom"))
	f.clk.Advance(10 * time.Second)
	f.transport.last().open()
	f.mgr.Disconnect()

	want := []State{StateConnecting, StateErrored, StateConnecting, StateConnected, StateDisconnected}
	if len(f.changes) != len(want) {
		t.Fatalf("changes = %v, want %v", f.changes, want)
	}
	for i := range want {
		if f.changes[i] != want[i] {
			t.Errorf("changes[%d] = %v, want %v", i, f.changes[i], want[i])
		}
	}
}

// TestManager_AtMostOneSession runs a mixed sequence of calls and checks the
// session and timer bounds after every step.
func TestManager_AtMostOneSession(t *testing.T) {
	f := newManagerFixture(auth.StaticToken("tok"))

	steps := []func(){
		func() { f.mgr.Connect() },
		func() { f.mgr.Connect() },
		func() { f.transport.last().open() },
		func() { f.mgr.Connect() },
		func() { f.transport.last().drop(ReasonPingTimeout) },
		func() { f.mgr.Connect() },
		func() { f.transport.last().fail(errors.New("x")) },
		func() { f.clk.Advance(3 * time.Second) },
		func() { f.mgr.Disconnect() },
		func() { f.mgr.Connect() },
		func() { f.mgr.Disconnect() },
		func() { f.mgr.Disconnect() },
		func() { f.mgr.Connect() },
		func() { f.transport.last().open() },
		func() { f.transport.last().drop(ReasonServerDisconnect) },
		func() { f.clk.Advance(10 * time.Second) },
	}

	for i, step := range steps {
		step()
		if n := f.transport.live(); n > 1 {
			t.Fatalf("step %d: live sessions = %d", i, n)
		}
		if f.clk.Pending() > f.timers.Len() {
			t.Fatalf("step %d: clock has %d timers, table %d", i, f.clk.Pending(), f.timers.Len())
		}
	}
}
