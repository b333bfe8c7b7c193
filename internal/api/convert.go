package api

import (
	"time"

	"github.com/unifyhq/botsync/internal/model"
)

// ParseTimestamp parses an ISO 8601 timestamp.
// Returns the zero time for empty or invalid input.
func ParseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}

	return t
}

// ToRecord converts the wire bot to the authoritative record.
func (b *APIBot) ToRecord() model.BotRecord {
	rec := model.BotRecord{
		ID:           b.ID,
		Name:         b.Name,
		Description:  b.Description,
		Owner:        b.Owner,
		Status:       model.BotStatus(b.Status),
		HasQR:        b.QRCode != nil && *b.QRCode != "",
		IsActive:     b.IsActive,
		LastActivity: ParseTimestamp(b.LastActivity),
		CreatedAt:    ParseTimestamp(b.CreatedAt),
		UpdatedAt:    ParseTimestamp(b.UpdatedAt),
	}
	if b.PhoneNumber != nil && *b.PhoneNumber != "" {
		rec.PhoneNumber = model.String(*b.PhoneNumber)
	}
	return rec
}

// ToView converts the wire bot to a view. The overlay and readiness are set
// only when the backend sent them.
func (b *APIBot) ToView() model.BotView {
	v := model.BotView{BotRecord: b.ToRecord()}
	if b.RealTime != nil {
		v.RealTime = &model.Augmentation{
			ClientExists: b.RealTime.ClientExists,
			HasQR:        b.RealTime.HasQR,
			IsReady:      b.RealTime.IsReady,
		}
	}
	if b.IsReady != nil {
		v.IsReady = model.Bool(*b.IsReady)
	}
	return v
}
