// Package rooms tracks which bot rooms the client has joined.
//
// Membership is application intent: it survives disconnects and is
// replayed by Resync after every successful connect, since the server
// forgets subscriptions when a session ends.
package rooms

import (
	"log/slog"
	"sort"

	"github.com/unifyhq/botsync/internal/connection"
)

// Emitter sends commands on the current session, if any.
type Emitter interface {
	IsConnected() bool
	Emit(event string, payload any) error
}

// Registry is the set of joined rooms. It must only be used from the event
// loop.
type Registry struct {
	conn    Emitter
	logger  *slog.Logger
	members map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(conn Emitter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		conn:    conn,
		logger:  logger,
		members: make(map[string]struct{}),
	}
}

// Join adds id to the membership set and sends a join command if
// connected. Joining a member again is a no-op. Returns true if id was
// added.
func (r *Registry) Join(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := r.members[id]; ok {
		return false
	}
	r.members[id] = struct{}{}
	r.send(connection.CmdJoinRoom, id)
	return true
}

// Leave removes id and sends a leave command if connected. Leaving a
// non-member is a no-op. Returns true if id was removed.
func (r *Registry) Leave(id string) bool {
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	r.send(connection.CmdLeaveRoom, id)
	return true
}

// Has reports whether id is a member.
func (r *Registry) Has(id string) bool {
	_, ok := r.members[id]
	return ok
}

// Len returns the number of members.
func (r *Registry) Len() int { return len(r.members) }

// Members returns the member ids in sorted order.
func (r *Registry) Members() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resync re-sends a join command for every member. Call after each
// successful connect. Returns the number of commands sent.
func (r *Registry) Resync() int {
	if !r.conn.IsConnected() {
		return 0
	}

	sent := 0
	for _, id := range r.Members() {
		if r.send(connection.CmdJoinRoom, id) {
			sent++
		}
	}
	r.logger.Info("rooms resynced", "rooms", sent)
	return sent
}

// RequestStatus asks the server for a status push for id. Dropped when
// not connected.
func (r *Registry) RequestStatus(id string) bool {
	return r.send(connection.CmdRequestStatus, id)
}

func (r *Registry) send(cmd, id string) bool {
	if !r.conn.IsConnected() {
		return false
	}
	if err := r.conn.Emit(cmd, id); err != nil {
		r.logger.Warn("failed to send room command", "cmd", cmd, "bot_id", id, "error", err)
		return false
	}
	r.logger.Debug("room command sent", "cmd", cmd, "bot_id", id)
	return true
}
