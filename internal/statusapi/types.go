package statusapi

import (
	"time"

	"github.com/unifyhq/botsync/internal/model"
)

// Bot is the JSON form of a merged bot view.
type Bot struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Owner        string              `json:"owner,omitempty"`
	Status       model.BotStatus     `json:"status"`
	PhoneNumber  *string             `json:"phoneNumber"`
	HasQR        bool                `json:"hasQR"`
	IsActive     bool                `json:"isActive"`
	LastActivity *time.Time          `json:"lastActivity,omitempty"`
	CreatedAt    *time.Time          `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time          `json:"updatedAt,omitempty"`
	RealTime     *model.Augmentation `json:"realTime,omitempty"`
	IsReady      *bool               `json:"isReady,omitempty"`
}

// BotList is the /bots response.
type BotList struct {
	Count int   `json:"count"`
	Data  []Bot `json:"data"`
}

// Health is the /health response.
type Health struct {
	Status        string     `json:"status"` // ok or degraded
	Connection    string     `json:"connection"`
	LastError     string     `json:"lastError,omitempty"`
	LastRefreshed *time.Time `json:"lastRefreshed,omitempty"`
	FetchError    string     `json:"fetchError,omitempty"`
	Bots          int        `json:"bots"`
	Rooms         int        `json:"rooms"`
	API           *APIHealth `json:"api,omitempty"`
}

// APIHealth reports whether the bot backend answered a ping.
type APIHealth struct {
	Reachable bool   `json:"reachable"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RoomList is the /rooms response.
type RoomList struct {
	Count int      `json:"count"`
	Rooms []string `json:"rooms"`
}

func toBot(v model.BotView) Bot {
	return Bot{
		ID:           v.ID,
		Name:         v.Name,
		Description:  v.Description,
		Owner:        v.Owner,
		Status:       v.Status,
		PhoneNumber:  v.PhoneNumber,
		HasQR:        v.HasQR,
		IsActive:     v.IsActive,
		LastActivity: timePtr(v.LastActivity),
		CreatedAt:    timePtr(v.CreatedAt),
		UpdatedAt:    timePtr(v.UpdatedAt),
		RealTime:     v.RealTime,
		IsReady:      v.IsReady,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
