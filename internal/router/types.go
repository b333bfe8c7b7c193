package router

import (
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	EventStatusUpdate = "bot-status-update"
	EventConnected    = "bot-connected"
	EventDisconnected = "bot-disconnected"
	EventQRGenerated  = "bot-qr-generated"
	EventError        = "bot-error"
	EventMessageSent  = "message-sent"
	EventLog          = "bot-log"
	EventStatsUpdate  = "bot-stats-update"
	EventUpdated      = "bot-updated"
	EventCreated      = "bot-created"
	EventDeleted      = "bot-deleted"
	EventPong         = "pong"
)

// Event is one routed push event. Every event carries a bot id and a
// timestamp; Data holds the full payload for kind-specific decoding.
type Event struct {
	Name       string
	BotID      string
	Timestamp  time.Time // Server time; zero if absent or unparseable
	Data       json.RawMessage
	ReceivedAt time.Time // Local time the frame was read
}

// Handler receives events. Handlers run on the event loop.
type Handler func(Event)

// Stats contains routing counters.
type Stats struct {
	Received    int64 // events dispatched
	Delivered   int64 // handler invocations
	Unhandled   int64 // events with no handler
	ParseErrors int64 // payloads that were not JSON objects
}

// envelope is the part of every payload the router reads.
type envelope struct {
	BotID     string `json:"botId"`
	Timestamp string `json:"timestamp"`
}

// statusUpdateWire is the bot-status-update payload.
type statusUpdateWire struct {
	BotID    string `json:"botId"`
	Database struct {
		Status       string `json:"status"`
		PhoneNumber  string `json:"phoneNumber"`
		LastActivity string `json:"lastActivity"`
		QRCode       bool   `json:"qrCode"`
	} `json:"database"`
	RealTime struct {
		ClientExists bool `json:"clientExists"`
		HasQR        bool `json:"hasQR"`
		IsReady      bool `json:"isReady"`
	} `json:"realTime"`
	IsReady   bool   `json:"isReady"`
	Timestamp string `json:"timestamp"`
}
