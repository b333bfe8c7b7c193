package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/unifyhq/botsync/internal/auth"
	"github.com/unifyhq/botsync/internal/eventloop"
)

// EventSink receives every inbound event from the live session.
type EventSink func(name string, data json.RawMessage, receivedAt time.Time)

// StateObserver is told about every state transition.
type StateObserver func(prev, next State)

// Manager owns the connection state machine. All methods must be called on
// the event loop.
type Manager struct {
	cfg       Config
	loop      *eventloop.Loop
	timers    *eventloop.Timers
	transport Transport
	tokens    auth.TokenProvider
	logger    *slog.Logger

	state   State
	session Session
	// attempt identifies the current session; callbacks carrying an older
	// value belong to a superseded session.
	attempt uint64
	lastErr error

	sink      EventSink
	observers []StateObserver
	stats     Stats
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(cfg Config, loop *eventloop.Loop, timers *eventloop.Timers, transport Transport, tokens auth.TokenProvider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:       cfg,
		loop:      loop,
		timers:    timers,
		transport: transport,
		tokens:    tokens,
		logger:    logger,
		state:     StateDisconnected,
	}
}

// SetEventSink sets the receiver for inbound events.
func (m *Manager) SetEventSink(sink EventSink) {
	m.sink = sink
}

// OnStateChange registers an observer for state transitions.
func (m *Manager) OnStateChange(fn StateObserver) {
	m.observers = append(m.observers, fn)
}

// State returns the current state.
func (m *Manager) State() State { return m.state }

// IsConnected reports whether a live session is open.
func (m *Manager) IsConnected() bool { return m.state == StateConnected }

// LastError returns the most recent connection error, or nil.
func (m *Manager) LastError() error { return m.lastErr }

// Stats returns activity counters.
func (m *Manager) Stats() Stats { return m.stats }

// Connect opens a session unless one is already open or being opened. A
// missing token is returned as ErrAuthMissing and no attempt is made.
func (m *Manager) Connect() error {
	if m.state == StateConnecting || m.state == StateConnected {
		return nil
	}
	return m.open()
}

// Disconnect closes any session, cancels pending timers and forces the
// Disconnected state. Valid from any state.
func (m *Manager) Disconnect() {
	m.attempt++
	m.timers.Cancel(eventloop.PurposeReconnect)
	m.timers.Cancel(eventloop.PurposeKeepalive)

	if m.session != nil {
		if err := m.session.Close(); err != nil {
			m.logger.Debug("close session", "error", err)
		}
		m.session = nil
	}

	m.setState(StateDisconnected)
}

// Emit sends a command on the live session.
func (m *Manager) Emit(event string, payload any) error {
	if m.state != StateConnected || m.session == nil {
		return ErrNotConnected
	}
	return m.session.Emit(event, payload)
}

func (m *Manager) open() error {
	if m.tokens == nil {
		return m.authMissing(auth.ErrNoToken)
	}
	token, err := m.tokens.Token()
	if err != nil {
		return m.authMissing(err)
	}

	// An explicit connect supersedes a scheduled one.
	m.timers.Cancel(eventloop.PurposeReconnect)

	m.attempt++
	m.stats.Attempts++
	h := &attemptHandler{m: m, id: m.attempt}

	m.setState(StateConnecting)
	m.session = m.transport.Open(token, h)
	h.session = m.session

	m.logger.Debug("connecting", "attempt", h.id)
	return nil
}

func (m *Manager) authMissing(cause error) error {
	m.lastErr = fmt.Errorf("%w: %w", ErrAuthMissing, cause)
	m.logger.Warn("not connecting, no token", "error", cause)
	m.setState(StateDisconnected)
	return m.lastErr
}

func (m *Manager) onOpen() {
	m.timers.Cancel(eventloop.PurposeReconnect)
	m.lastErr = nil
	m.stats.Opens++

	m.setState(StateConnected)
	m.scheduleKeepalive()
}

func (m *Manager) onOpenError(err error) {
	m.session = nil
	if !errors.Is(err, ErrHandshakeFailed) {
		err = fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	m.lastErr = err
	m.stats.HandshakeFailures++

	m.setState(StateErrored)
	m.scheduleReconnect(m.cfg.ErrorRetryDelay)
}

func (m *Manager) onClose(reason CloseReason) {
	m.timers.Cancel(eventloop.PurposeKeepalive)
	m.session = nil
	m.stats.Drops++

	m.setState(StateDisconnected)

	switch d := Classify(reason); d {
	case DispositionTransient:
		m.lastErr = fmt.Errorf("%w: %s", ErrTransportDropped, reason)
		m.scheduleReconnect(m.cfg.DropRetryDelay)
	case DispositionIntentional:
		m.logger.Debug("session closed locally")
	default:
		m.lastErr = fmt.Errorf("%w: %s", ErrTransportDropped, reason)
		m.logger.Warn("session closed for unrecognized reason, not reconnecting", "reason", reason)
	}
}

func (m *Manager) onEvent(name string, data json.RawMessage, receivedAt time.Time) {
	if m.sink != nil {
		m.sink(name, data, receivedAt)
	}
}

// scheduleReconnect arms the reconnect timer unless one is pending.
func (m *Manager) scheduleReconnect(d time.Duration) {
	if !m.timers.Schedule(eventloop.PurposeReconnect, d, m.reconnect) {
		return
	}
	m.stats.ReconnectsScheduled++
	m.logger.Info("reconnect scheduled", "delay", d)
}

func (m *Manager) reconnect() {
	if m.state == StateConnecting || m.state == StateConnected {
		return
	}
	m.logger.Info("attempting reconnection")
	if err := m.open(); err != nil {
		m.logger.Warn("reconnection abandoned", "error", err)
	}
}

// scheduleKeepalive sends a ping every KeepaliveInterval while connected.
func (m *Manager) scheduleKeepalive() {
	if m.cfg.KeepaliveInterval <= 0 {
		return
	}
	m.timers.Schedule(eventloop.PurposeKeepalive, m.cfg.KeepaliveInterval, func() {
		if m.state != StateConnected {
			return
		}
		if err := m.Emit(CmdPing, nil); err != nil {
			m.logger.Debug("keepalive ping failed", "error", err)
		}
		m.scheduleKeepalive()
	})
}

func (m *Manager) setState(next State) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	m.logger.Info("connection state changed", "from", prev, "to", next)

	for _, fn := range m.observers {
		fn(prev, next)
	}
}

// attemptHandler routes callbacks for one session and drops them once the
// session has been superseded.
type attemptHandler struct {
	m       *Manager
	id      uint64
	session Session
}

func (h *attemptHandler) current() bool {
	return h.m.attempt == h.id
}

func (h *attemptHandler) OnOpen() {
	if !h.current() {
		// Opened after being superseded.
		if h.session != nil {
			if err := h.session.Close(); err != nil {
				h.m.logger.Debug("close superseded session", "error", err)
			}
		}
		return
	}
	h.m.onOpen()
}

func (h *attemptHandler) OnOpenError(err error) {
	if !h.current() {
		return
	}
	h.m.onOpenError(err)
}

func (h *attemptHandler) OnClose(reason CloseReason) {
	if !h.current() || h.m.state != StateConnected {
		return
	}
	h.m.onClose(reason)
}

func (h *attemptHandler) OnEvent(name string, data json.RawMessage, receivedAt time.Time) {
	if !h.current() || h.m.state != StateConnected {
		return
	}
	h.m.onEvent(name, data, receivedAt)
}
