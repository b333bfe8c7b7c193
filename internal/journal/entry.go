package journal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/unifyhq/botsync/internal/router"
)

// Kinds are the event names the journal records.
var Kinds = []string{
	router.EventError,
	router.EventMessageSent,
	router.EventLog,
	router.EventStatsUpdate,
}

// Entry is one bot_activity row.
type Entry struct {
	ID         uuid.UUID
	BotID      string
	Kind       string          // event name
	Payload    json.RawMessage // full event payload
	EventAt    time.Time       // server timestamp, or ReceivedAt when absent
	ReceivedAt time.Time
}

// FromEvent converts a routed event into an Entry with a fresh id.
func FromEvent(ev router.Event) Entry {
	payload := ev.Data
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage(`{}`)
	}

	eventAt := ev.Timestamp
	if eventAt.IsZero() {
		eventAt = ev.ReceivedAt
	}

	return Entry{
		ID:         uuid.New(),
		BotID:      ev.BotID,
		Kind:       ev.Name,
		Payload:    payload,
		EventAt:    eventAt,
		ReceivedAt: ev.ReceivedAt,
	}
}
