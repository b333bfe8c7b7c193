package connection

import (
	"encoding/json"
	"time"
)

// Handler receives session callbacks. Calls arrive on the event loop, in
// the order the transport observed them.
type Handler interface {
	OnOpen()
	OnOpenError(err error)
	OnClose(reason CloseReason)
	OnEvent(name string, data json.RawMessage, receivedAt time.Time)
}

// Session is one transport session.
type Session interface {
	// Emit sends a named command. A nil payload sends no data.
	Emit(event string, payload any) error

	// Close ends the session. It is safe to call more than once.
	Close() error
}

// Transport opens sessions. Open must not block and must not invoke h
// before it returns.
type Transport interface {
	Open(token string, h Handler) Session
}
