package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrAuthMissing      = errors.New("authentication token missing")
	ErrHandshakeFailed  = errors.New("handshake failed")
	ErrTransportDropped = errors.New("transport dropped")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// CloseReason describes why a session ended. The names match the reasons
// reported by the push server's client library.
type CloseReason string

const (
	ReasonServerDisconnect CloseReason = "io server disconnect"
	ReasonPingTimeout      CloseReason = "ping timeout"
	ReasonTransportClose   CloseReason = "transport close"
	ReasonClientDisconnect CloseReason = "io client disconnect"
	ReasonTransportError   CloseReason = "transport error"
	ReasonParseError       CloseReason = "parse error"
)

// Disposition is what the Manager does after a close.
type Disposition int

const (
	// DispositionUnknown: log, do not reconnect.
	DispositionUnknown Disposition = iota
	// DispositionTransient: reconnect after DropRetryDelay.
	DispositionTransient
	// DispositionIntentional: local disconnect, do nothing.
	DispositionIntentional
)

func (d Disposition) String() string {
	switch d {
	case DispositionTransient:
		return "transient"
	case DispositionIntentional:
		return "intentional"
	}
	return "unknown"
}

// Classify maps a close reason to its disposition. Reasons not listed here
// are unknown and never trigger a reconnect.
func Classify(reason CloseReason) Disposition {
	switch reason {
	case ReasonServerDisconnect, ReasonPingTimeout, ReasonTransportClose:
		return DispositionTransient
	case ReasonClientDisconnect:
		return DispositionIntentional
	}
	return DispositionUnknown
}

// Frame is one text message on the wire, in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Commands sent to the server.
const (
	CmdJoinRoom      = "join-bot-room"
	CmdLeaveRoom     = "leave-bot-room"
	CmdRequestStatus = "request-bot-status"
	CmdPing          = "ping"
)

// Config configures the Manager's timing.
type Config struct {
	KeepaliveInterval time.Duration // ping command cadence while connected
	ErrorRetryDelay   time.Duration // reconnect delay after a failed handshake
	DropRetryDelay    time.Duration // reconnect delay after a transient drop
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		KeepaliveInterval: 60 * time.Second,
		ErrorRetryDelay:   10 * time.Second,
		DropRetryDelay:    5 * time.Second,
	}
}

// WSConfig configures the websocket transport.
type WSConfig struct {
	URL              string        // ws:// or wss:// endpoint
	HandshakeTimeout time.Duration // dial + upgrade deadline
	WriteTimeout     time.Duration // per-frame write deadline
	PingInterval     time.Duration // control ping cadence
	ReadTimeout      time.Duration // max silence before the session is declared dead
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 20 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     25 * time.Second,
		ReadTimeout:      60 * time.Second,
	}
}

// Stats counts Manager activity.
type Stats struct {
	Attempts            int // sessions opened
	Opens               int // successful handshakes
	HandshakeFailures   int
	Drops               int // closes of a live session
	ReconnectsScheduled int
}
