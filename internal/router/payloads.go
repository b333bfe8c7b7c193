package router

import (
	"encoding/json"
	"fmt"

	"github.com/unifyhq/botsync/internal/model"
)

// ParseStatusUpdate decodes a bot-status-update event.
func ParseStatusUpdate(ev Event) (model.StatusUpdate, error) {
	var wire statusUpdateWire
	if err := json.Unmarshal(ev.Data, &wire); err != nil {
		return model.StatusUpdate{}, fmt.Errorf("decode %s: %w", ev.Name, err)
	}
	if wire.BotID == "" {
		return model.StatusUpdate{}, fmt.Errorf("decode %s: missing botId", ev.Name)
	}

	return model.StatusUpdate{
		BotID:        wire.BotID,
		Status:       model.BotStatus(wire.Database.Status),
		PhoneNumber:  wire.Database.PhoneNumber,
		LastActivity: parseTime(wire.Database.LastActivity),
		HasQR:        wire.Database.QRCode,
		RealTime: model.Augmentation{
			ClientExists: wire.RealTime.ClientExists,
			HasQR:        wire.RealTime.HasQR,
			IsReady:      wire.RealTime.IsReady,
		},
		IsReady:   wire.IsReady,
		Timestamp: parseTime(wire.Timestamp),
	}, nil
}

// Fields decodes the payload into a generic map, for consumers that store
// the event as-is.
func Fields(ev Event) (map[string]any, error) {
	fields := make(map[string]any)
	if len(ev.Data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(ev.Data, &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Name, err)
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	return fields, nil
}
