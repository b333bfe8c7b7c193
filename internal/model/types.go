package model

import "time"

// BotStatus is the lifecycle status reported by the bot backend.
type BotStatus string

const (
	StatusPending      BotStatus = "pending"
	StatusConnected    BotStatus = "connected"
	StatusDisconnected BotStatus = "disconnected"
	StatusError        BotStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s BotStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConnected, StatusDisconnected, StatusError:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Authoritative record
// -----------------------------------------------------------------------------

// BotRecord is the authoritative shape of a bot, as returned by a full fetch.
type BotRecord struct {
	ID           string    // Primary key
	Name         string    // Display name
	Description  string    // Free text
	Owner        string    // Owning user id
	Status       BotStatus // pending, connected, disconnected, error
	PhoneNumber  *string   // Paired phone number, nil until paired
	HasQR        bool      // A pairing QR code is available
	IsActive     bool      // Operator-enabled; active bots get a room
	LastActivity time.Time // Last backend activity
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// -----------------------------------------------------------------------------
// Real-time overlay
// -----------------------------------------------------------------------------

// Augmentation is the push-only overlay for one bot. It never comes from
// the authoritative store directly.
type Augmentation struct {
	ClientExists bool `json:"clientExists"`
	HasQR        bool `json:"hasQR"`
	IsReady      bool `json:"isReady"`
}

// BotView is what consumers see: the authoritative record plus the
// optional overlay and a derived readiness flag.
type BotView struct {
	BotRecord
	RealTime *Augmentation // nil until a push event supplies it
	IsReady  *bool         // nil when readiness is unknown
}

// Ready returns the readiness flag, treating unknown as false.
func (v BotView) Ready() bool {
	return v.IsReady != nil && *v.IsReady
}

// Clone returns a deep copy of v.
func (v BotView) Clone() BotView {
	out := v
	if v.PhoneNumber != nil {
		p := *v.PhoneNumber
		out.PhoneNumber = &p
	}
	if v.RealTime != nil {
		rt := *v.RealTime
		out.RealTime = &rt
	}
	if v.IsReady != nil {
		r := *v.IsReady
		out.IsReady = &r
	}
	return out
}

// -----------------------------------------------------------------------------
// Push payloads
// -----------------------------------------------------------------------------

// StatusUpdate is a bot-status-update push: authoritative fields plus the
// overlay for one bot.
type StatusUpdate struct {
	BotID        string
	Status       BotStatus
	PhoneNumber  string // Empty means "not reported"
	LastActivity time.Time
	HasQR        bool
	RealTime     Augmentation
	IsReady      bool
	Timestamp    time.Time
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s.
func String(s string) *string { return &s }
