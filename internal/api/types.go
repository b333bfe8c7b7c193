package api

import "encoding/json"

// envelope is the common response wrapper.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// BotsResponse from GET /api/bots
type BotsResponse struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Data    []APIBot `json:"data"`
	Message string   `json:"message,omitempty"`
}

// BotResponse from GET /api/bots/{id}
type BotResponse struct {
	Success bool   `json:"success"`
	Data    APIBot `json:"data"`
	Message string `json:"message,omitempty"`
}

// PingResponse from GET /api/ping
type PingResponse struct {
	Message string `json:"message"`
}

// APIBot is a bot as the backend serializes it.
type APIBot struct {
	ID           string  `json:"_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Status       string  `json:"status"`
	QRCode       *string `json:"qrCode"`
	PhoneNumber  *string `json:"phoneNumber"`
	Owner        string  `json:"owner"`
	IsActive     bool    `json:"isActive"`
	LastActivity string  `json:"lastActivity"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`

	// Present only when the backend merges live client state in.
	RealTime *APIRealTime `json:"realTime,omitempty"`
	IsReady  *bool        `json:"isReady,omitempty"`

	// Settings and endpoint details are not used by the sync subsystem.
	Settings json.RawMessage `json:"settings,omitempty"`
}

// APIRealTime is the optional live-client overlay.
type APIRealTime struct {
	ClientExists bool `json:"clientExists"`
	HasQR        bool `json:"hasQR"`
	IsReady      bool `json:"isReady"`
}
