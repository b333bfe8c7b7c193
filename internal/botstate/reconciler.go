package botstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/unifyhq/botsync/internal/eventloop"
	"github.com/unifyhq/botsync/internal/model"
	"github.com/unifyhq/botsync/internal/router"
)

// ErrFetchFailed wraps every full-fetch failure.
var ErrFetchFailed = errors.New("full fetch failed")

// Fetcher performs the authoritative full fetch.
type Fetcher interface {
	ListBots(ctx context.Context) ([]model.BotView, error)
}

// Rooms is the room registry as seen by the Reconciler.
type Rooms interface {
	Join(id string) bool
	Leave(id string) bool
	RequestStatus(id string) bool
}

// Subscriber registers event handlers.
type Subscriber interface {
	On(name string, h router.Handler) func()
}

// Config holds Reconciler configuration.
type Config struct {
	ConnectedFetchDelay time.Duration // full fetch after bot-connected
	ChangeFetchDelay    time.Duration // full fetch after disconnected/created/updated/deleted
	FetchTimeout        time.Duration
	AutoJoin            bool // join rooms for active bots after each fetch
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectedFetchDelay: time.Second,
		ChangeFetchDelay:    500 * time.Millisecond,
		FetchTimeout:        30 * time.Second,
		AutoJoin:            true,
	}
}

// Stats counts Reconciler activity.
type Stats struct {
	Fetches          int
	FetchFailures    int
	FetchesScheduled int
	EventsApplied    int
	EventsIgnored    int // events for bots not held locally, or undecodable
}

// Reconciler merges push events and full fetches into one view set.
type Reconciler struct {
	cfg     Config
	loop    *eventloop.Loop
	timers  *eventloop.Timers
	fetcher Fetcher
	rooms   Rooms
	logger  *slog.Logger

	state *state

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()

	// Fetch coordination: at most one fetch in flight. A request made
	// during a fetch runs once more afterwards.
	fetching    bool
	again       bool
	waiters     []func(error)
	nextWaiters []func(error)

	// Bots deleted while the current fetch was in flight. That fetch may
	// predate the deletion, so its copy of them is discarded.
	deletedDuringFetch map[string]struct{}

	lastRefreshed time.Time
	lastFetchErr  error
	stats         Stats
}

// New creates a Reconciler with an empty view set.
func New(cfg Config, loop *eventloop.Loop, timers *eventloop.Timers, fetcher Fetcher, rooms Rooms, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		cfg:     cfg,
		loop:    loop,
		timers:  timers,
		fetcher: fetcher,
		rooms:   rooms,
		logger:  logger,
		state:   newState(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Bind registers the Reconciler's handlers. Binding twice replaces the
// previous registrations.
func (r *Reconciler) Bind(sub Subscriber) {
	r.Unbind()

	r.unsubs = append(r.unsubs,
		sub.On(router.EventStatusUpdate, r.onStatusUpdate),
		sub.On(router.EventConnected, r.onConnected),
		sub.On(router.EventDisconnected, r.onDisconnected),
		sub.On(router.EventQRGenerated, r.onQRGenerated),
		sub.On(router.EventCreated, r.onStructuralChange),
		sub.On(router.EventUpdated, r.onStructuralChange),
		sub.On(router.EventDeleted, r.onDeleted),
	)
}

// Unbind removes the Reconciler's handlers.
func (r *Reconciler) Unbind() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// Stop unbinds, cancels a scheduled fetch and aborts one in flight.
func (r *Reconciler) Stop() {
	r.Unbind()
	r.timers.Cancel(eventloop.PurposeRefresh)
	r.cancel()
}

// View returns one bot.
func (r *Reconciler) View(id string) (model.BotView, bool) {
	return r.state.get(id)
}

// Views returns every bot, sorted by id.
func (r *Reconciler) Views() []model.BotView {
	return r.state.list()
}

// Len returns the number of bots held.
func (r *Reconciler) Len() int { return len(r.state.views) }

// LastRefreshed returns the time of the last successful full fetch.
func (r *Reconciler) LastRefreshed() time.Time { return r.lastRefreshed }

// LastFetchError returns the error of the most recent fetch, or nil.
func (r *Reconciler) LastFetchError() error { return r.lastFetchErr }

// Refreshing reports whether a fetch is in flight.
func (r *Reconciler) Refreshing() bool { return r.fetching }

// RefreshScheduled reports whether a delayed fetch is pending.
func (r *Reconciler) RefreshScheduled() bool {
	return r.timers.Pending(eventloop.PurposeRefresh)
}

// Stats returns activity counters.
func (r *Reconciler) Stats() Stats { return r.stats }

// -----------------------------------------------------------------------------
// Event handlers
// -----------------------------------------------------------------------------

func (r *Reconciler) onStatusUpdate(ev router.Event) {
	u, err := router.ParseStatusUpdate(ev)
	if err != nil {
		r.stats.EventsIgnored++
		r.logger.Warn("ignoring status update", "error", err)
		return
	}
	if !r.state.applyStatusUpdate(u) {
		r.stats.EventsIgnored++
		r.logger.Debug("status update for unknown bot", "bot_id", u.BotID)
		return
	}
	r.stats.EventsApplied++
	r.logger.Debug("status update applied", "bot_id", u.BotID, "status", u.Status, "ready", u.IsReady)
}

func (r *Reconciler) onConnected(ev router.Event) {
	if ev.BotID == "" {
		r.stats.EventsIgnored++
		return
	}
	r.stats.EventsApplied++
	// The store may lag the push; ask for a status push now and re-read
	// the store shortly.
	r.rooms.RequestStatus(ev.BotID)
	r.ScheduleRefresh(r.cfg.ConnectedFetchDelay)
}

func (r *Reconciler) onDisconnected(ev router.Event) {
	if r.state.markDisconnected(ev.BotID) {
		r.stats.EventsApplied++
	} else {
		r.stats.EventsIgnored++
	}
	r.ScheduleRefresh(r.cfg.ChangeFetchDelay)
}

func (r *Reconciler) onQRGenerated(ev router.Event) {
	if r.state.markQR(ev.BotID) {
		r.stats.EventsApplied++
		return
	}
	r.stats.EventsIgnored++
}

func (r *Reconciler) onStructuralChange(ev router.Event) {
	r.stats.EventsApplied++
	r.logger.Debug("structural change, refresh scheduled", "event", ev.Name, "bot_id", ev.BotID)
	r.ScheduleRefresh(r.cfg.ChangeFetchDelay)
}

func (r *Reconciler) onDeleted(ev router.Event) {
	r.stats.EventsApplied++
	if ev.BotID != "" {
		if r.fetching {
			r.deletedDuringFetch[ev.BotID] = struct{}{}
		}
		r.state.remove(ev.BotID)
		r.rooms.Leave(ev.BotID)
		r.logger.Info("bot deleted", "bot_id", ev.BotID)
	}
	r.ScheduleRefresh(r.cfg.ChangeFetchDelay)
}

// -----------------------------------------------------------------------------
// Full fetch
// -----------------------------------------------------------------------------

// ScheduleRefresh arranges a full fetch after d. While one is already
// scheduled the request is absorbed by it.
func (r *Reconciler) ScheduleRefresh(d time.Duration) bool {
	ok := r.timers.Schedule(eventloop.PurposeRefresh, d, func() {
		r.Refresh(nil)
	})
	if ok {
		r.stats.FetchesScheduled++
	}
	return ok
}

// Refresh starts a full fetch, or queues one more if a fetch is in flight.
// done, if non-nil, is called on the loop with the result.
func (r *Reconciler) Refresh(done func(error)) {
	if r.fetching {
		r.again = true
		if done != nil {
			r.nextWaiters = append(r.nextWaiters, done)
		}
		return
	}

	var waiters []func(error)
	if done != nil {
		waiters = append(waiters, done)
	}
	r.startFetch(waiters)
}

func (r *Reconciler) startFetch(waiters []func(error)) {
	r.fetching = true
	r.waiters = waiters
	r.deletedDuringFetch = make(map[string]struct{})
	r.stats.Fetches++

	ctx := r.ctx
	r.loop.Go(func() {
		fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
		bots, err := r.fetcher.ListBots(fetchCtx)
		cancel()
		r.loop.Post(func() { r.finishFetch(bots, err) })
	})
}

func (r *Reconciler) finishFetch(bots []model.BotView, err error) {
	r.fetching = false
	waiters := r.waiters
	r.waiters = nil

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		r.lastFetchErr = err
		r.stats.FetchFailures++
		r.logger.Warn("full fetch failed, keeping local state", "error", err)
	} else {
		bots = r.dropDeleted(bots)
		inserted, updated := r.state.mergeSnapshot(bots)
		r.lastRefreshed = r.loop.Now()
		r.lastFetchErr = nil
		r.logger.Debug("full fetch merged",
			"fetched", len(bots),
			"inserted", inserted,
			"updated", updated,
			"total", len(r.state.views),
		)
		if r.cfg.AutoJoin {
			r.joinActive(bots)
		}
	}

	for _, w := range waiters {
		w(err)
	}

	if r.again {
		r.again = false
		next := r.nextWaiters
		r.nextWaiters = nil
		r.startFetch(next)
	}
}

func (r *Reconciler) dropDeleted(bots []model.BotView) []model.BotView {
	if len(r.deletedDuringFetch) == 0 {
		return bots
	}
	kept := bots[:0]
	for _, b := range bots {
		if _, gone := r.deletedDuringFetch[b.ID]; gone {
			r.logger.Debug("discarding bot deleted during fetch", "bot_id", b.ID)
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// joinActive joins the room of every active bot in the fetch.
func (r *Reconciler) joinActive(bots []model.BotView) {
	joined := 0
	for _, b := range bots {
		if b.IsActive && r.rooms.Join(b.ID) {
			joined++
		}
	}
	if joined > 0 {
		r.logger.Info("joined rooms for active bots", "joined", joined)
	}
}
