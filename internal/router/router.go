// Package router fans named push events out to registered handlers.
//
// Any number of handlers may be registered per event name; each
// registration returns its own unsubscribe function. Registration does
// not depend on the connection: events simply do not arrive while
// disconnected.
package router

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"time"
)

type subscription struct {
	handler Handler
}

// Router dispatches events. It must only be used from the event loop.
type Router struct {
	logger   *slog.Logger
	handlers map[string][]*subscription
	stats    Stats
}

// New creates an empty Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		logger:   logger,
		handlers: make(map[string][]*subscription),
	}
}

// On registers h for events named name. The returned function removes
// exactly this registration; calling it again is a no-op.
func (r *Router) On(name string, h Handler) func() {
	sub := &subscription{handler: h}

	// Copy on write so a dispatch in progress keeps its snapshot.
	subs := r.handlers[name]
	next := make([]*subscription, len(subs), len(subs)+1)
	copy(next, subs)
	r.handlers[name] = append(next, sub)

	return func() { r.remove(name, sub) }
}

func (r *Router) remove(name string, sub *subscription) {
	subs := r.handlers[name]
	for i, s := range subs {
		if s != sub {
			continue
		}
		next := make([]*subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(r.handlers, name)
		} else {
			r.handlers[name] = next
		}
		return
	}
}

// Handlers returns the number of handlers registered for name.
func (r *Router) Handlers(name string) int {
	return len(r.handlers[name])
}

// Dispatch decodes the envelope and calls every handler for name, in
// registration order. Payloads that are not JSON objects are dropped.
func (r *Router) Dispatch(name string, data json.RawMessage, receivedAt time.Time) {
	r.stats.Received++

	ev := Event{
		Name:       name,
		Data:       data,
		ReceivedAt: receivedAt,
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			r.stats.ParseErrors++
			r.logger.Warn("failed to parse event payload", "event", name, "error", err)
			return
		}
		ev.BotID = env.BotID
		ev.Timestamp = parseTime(env.Timestamp)
	}

	subs := r.handlers[name]
	if len(subs) == 0 {
		r.stats.Unhandled++
		r.logger.Debug("no handler for event", "event", name)
		return
	}

	for _, s := range subs {
		s.handler(ev)
		r.stats.Delivered++
	}
}

// Stats returns routing counters.
func (r *Router) Stats() Stats {
	return r.stats
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
