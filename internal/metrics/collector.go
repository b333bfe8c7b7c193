package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unifyhq/botsync/internal/botsync"
	"github.com/unifyhq/botsync/internal/connection"
	"github.com/unifyhq/botsync/internal/model"
	"github.com/unifyhq/botsync/internal/router"
)

// SnapshotSource provides subsystem state.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (botsync.Snapshot, error)
}

// Subscriber registers event handlers.
type Subscriber interface {
	On(name string, h router.Handler) func()
}

var connectionStates = []connection.State{
	connection.StateDisconnected,
	connection.StateConnecting,
	connection.StateConnected,
	connection.StateErrored,
}

var botStatuses = []model.BotStatus{
	model.StatusPending,
	model.StatusConnected,
	model.StatusDisconnected,
	model.StatusError,
}

// Collector periodically samples a snapshot and updates the gauges and
// counters derived from it.
type Collector struct {
	source   SnapshotSource
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}

	// Counter values at the previous sample; counters advance by the
	// difference.
	prev botsync.Snapshot
}

// NewCollector creates a new metrics collector
func NewCollector(source SnapshotSource, interval time.Duration, logger *slog.Logger) *Collector {
	if interval == 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		source:   source,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start samples immediately and then every interval until ctx is cancelled
// or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Debug("metrics collector started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// Stop signals the collector to stop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Collector) collect(ctx context.Context) {
	snap, err := c.source.Snapshot(ctx)
	if err != nil {
		c.logger.Debug("metrics snapshot failed", "error", err)
		return
	}
	c.Observe(snap)
}

// Observe updates every snapshot-derived metric.
func (c *Collector) Observe(snap botsync.Snapshot) {
	for _, st := range connectionStates {
		v := 0.0
		if st == snap.State {
			v = 1
		}
		ConnectionState.WithLabelValues(st.String()).Set(v)
	}

	cur, prev := snap.Connection, c.prev.Connection
	addDelta(ConnectionEventsTotal.WithLabelValues("attempt"), cur.Attempts, prev.Attempts)
	addDelta(ConnectionEventsTotal.WithLabelValues("open"), cur.Opens, prev.Opens)
	addDelta(ConnectionEventsTotal.WithLabelValues("handshake_failure"), cur.HandshakeFailures, prev.HandshakeFailures)
	addDelta(ConnectionEventsTotal.WithLabelValues("drop"), cur.Drops, prev.Drops)
	addDelta(ConnectionEventsTotal.WithLabelValues("reconnect_scheduled"), cur.ReconnectsScheduled, prev.ReconnectsScheduled)

	addDelta(EventParseErrorsTotal, int(snap.Router.ParseErrors), int(c.prev.Router.ParseErrors))
	addDelta(FetchesTotal, snap.Reconciler.Fetches, c.prev.Reconciler.Fetches)
	addDelta(FetchFailuresTotal, snap.Reconciler.FetchFailures, c.prev.Reconciler.FetchFailures)
	addDelta(FallbackTriggeredTotal, snap.Fallback.Triggered, c.prev.Fallback.Triggered)

	if !snap.LastRefreshed.IsZero() {
		LastRefreshTimestamp.Set(float64(snap.LastRefreshed.Unix()))
	}

	counts := make(map[model.BotStatus]int, len(botStatuses))
	ready := 0
	for _, b := range snap.Bots {
		counts[b.Status]++
		if b.Ready() {
			ready++
		}
	}
	for _, st := range botStatuses {
		BotsTotal.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
	BotsReady.Set(float64(ready))
	RoomsJoined.Set(float64(len(snap.Rooms)))

	c.prev = snap
}

// Attach counts every routed event with one of the given names.
func Attach(sub Subscriber, names ...string) func() {
	unsubs := make([]func(), 0, len(names))
	for _, name := range names {
		counter := EventsTotal.WithLabelValues(name)
		unsubs = append(unsubs, sub.On(name, func(router.Event) { counter.Inc() }))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// addDelta advances c by the growth of a cumulative count. A count lower
// than before means the source restarted, so the whole count is added.
func addDelta(c prometheus.Counter, cur, prev int) {
	switch {
	case cur > prev:
		c.Add(float64(cur - prev))
	case cur < prev:
		c.Add(float64(cur))
	}
}
