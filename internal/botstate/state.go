package botstate

import (
	"sort"

	"github.com/unifyhq/botsync/internal/model"
)

// state is the set of merged views keyed by bot id.
type state struct {
	views map[string]*model.BotView
}

func newState() *state {
	return &state{views: make(map[string]*model.BotView)}
}

func (s *state) get(id string) (model.BotView, bool) {
	v, ok := s.views[id]
	if !ok {
		return model.BotView{}, false
	}
	return v.Clone(), true
}

// list returns copies of every view, sorted by id.
func (s *state) list() []model.BotView {
	out := make([]model.BotView, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) remove(id string) bool {
	if _, ok := s.views[id]; !ok {
		return false
	}
	delete(s.views, id)
	return true
}

// mergeSnapshot applies a full fetch. Authoritative fields are overwritten;
// the overlay and readiness survive unless the fetch supplies its own.
// Bots missing from the fetch are left alone. Returns the number of bots
// inserted and updated.
func (s *state) mergeSnapshot(fetched []model.BotView) (inserted, updated int) {
	for _, f := range fetched {
		next := f.Clone()

		existing, ok := s.views[f.ID]
		if !ok {
			s.views[f.ID] = &next
			inserted++
			continue
		}

		if next.RealTime == nil && existing.RealTime != nil {
			rt := *existing.RealTime
			next.RealTime = &rt
		}
		if next.IsReady == nil && existing.IsReady != nil {
			next.IsReady = model.Bool(*existing.IsReady)
		}
		s.views[f.ID] = &next
		updated++
	}
	return inserted, updated
}

// applyStatusUpdate overwrites one bot's authoritative fields and overlay.
// Only an empty phone number keeps the prior one. Unknown bots are ignored.
// Returns false if the bot is unknown.
func (s *state) applyStatusUpdate(u model.StatusUpdate) bool {
	v, ok := s.views[u.BotID]
	if !ok {
		return false
	}

	v.Status = u.Status
	if u.PhoneNumber != "" {
		v.PhoneNumber = model.String(u.PhoneNumber)
	}
	v.LastActivity = u.LastActivity
	v.HasQR = u.HasQR

	rt := u.RealTime
	v.RealTime = &rt
	v.IsReady = model.Bool(u.IsReady)
	return true
}

// markDisconnected applies the optimistic local effect of a disconnect.
func (s *state) markDisconnected(id string) bool {
	v, ok := s.views[id]
	if !ok {
		return false
	}
	v.Status = model.StatusDisconnected
	v.IsReady = model.Bool(false)
	if v.RealTime != nil {
		v.RealTime.IsReady = false
	}
	return true
}

// markQR records that a pairing QR code is available, on the record and
// on the overlay.
func (s *state) markQR(id string) bool {
	v, ok := s.views[id]
	if !ok {
		return false
	}
	v.HasQR = true
	if v.RealTime == nil {
		v.RealTime = &model.Augmentation{}
	}
	v.RealTime.HasQR = true
	return true
}
