package botsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/unifyhq/botsync/internal/auth"
	"github.com/unifyhq/botsync/internal/botstate"
	"github.com/unifyhq/botsync/internal/connection"
	"github.com/unifyhq/botsync/internal/eventloop"
	"github.com/unifyhq/botsync/internal/model"
	"github.com/unifyhq/botsync/internal/poller"
	"github.com/unifyhq/botsync/internal/rooms"
	"github.com/unifyhq/botsync/internal/router"
)

var (
	// ErrNotStarted is returned by operations that need Start to have run.
	ErrNotStarted = errors.New("syncer not started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("syncer stopped")
)

// Config holds configuration for every component of the subsystem.
type Config struct {
	Connection connection.Config
	Reconciler botstate.Config
	Fallback   poller.Config

	// RefreshOnReconnect requests one full fetch on every connect after
	// the first, to pick up events missed while the channel was down.
	RefreshOnReconnect bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Connection:         connection.DefaultConfig(),
		Reconciler:         botstate.DefaultConfig(),
		Fallback:           poller.DefaultConfig(),
		RefreshOnReconnect: true,
	}
}

// Deps are the collaborators injected into a Syncer.
type Deps struct {
	Loop      *eventloop.Loop
	Transport connection.Transport
	Tokens    auth.TokenProvider
	Fetcher   botstate.Fetcher
}

// Snapshot is a point-in-time copy of the subsystem state.
type Snapshot struct {
	State          connection.State
	Connected      bool
	LastError      error
	Bots           []model.BotView // sorted by id
	Rooms          []string        // sorted
	LastRefreshed  time.Time
	LastFetchError error
	Refreshing     bool

	Router     router.Stats
	Reconciler botstate.Stats
	Connection connection.Stats
	Fallback   poller.Stats
}

// Syncer is one subsystem instance.
type Syncer struct {
	cfg    Config
	loop   *eventloop.Loop
	logger *slog.Logger

	timers   *eventloop.Timers
	conn     *connection.Manager
	rooms    *rooms.Registry
	router   *router.Router
	rec      *botstate.Reconciler
	fallback *poller.Fallback

	// Loop-owned.
	started       bool
	stopped       bool
	everConnected bool
}

// New builds a Syncer. Nothing happens until Start.
func New(cfg Config, deps Deps, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}

	loop := deps.Loop
	timers := eventloop.NewTimers(loop)

	conn := connection.NewManager(cfg.Connection, loop, timers, deps.Transport, deps.Tokens,
		logger.With("component", "connection"))
	reg := rooms.NewRegistry(conn, logger.With("component", "rooms"))
	rt := router.New(logger.With("component", "router"))
	rec := botstate.New(cfg.Reconciler, loop, timers, deps.Fetcher, reg,
		logger.With("component", "reconciler"))
	fb := poller.New(cfg.Fallback, loop, timers, rec, logger.With("component", "fallback"))

	s := &Syncer{
		cfg:      cfg,
		loop:     loop,
		logger:   logger,
		timers:   timers,
		conn:     conn,
		rooms:    reg,
		router:   rt,
		rec:      rec,
		fallback: fb,
	}

	conn.SetEventSink(rt.Dispatch)
	conn.OnStateChange(s.onStateChange)
	rt.On(router.EventPong, func(router.Event) {
		s.logger.Debug("pong received")
	})

	return s
}

// Run drives the event loop until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	return s.loop.Run(ctx)
}

// Start binds the reconciler, opens the connection and performs the
// initial full fetch. It returns the connect error, if any; the fetch
// result is only logged. With a queued loop, Run must be running.
func (s *Syncer) Start(ctx context.Context) error {
	var connErr error
	err := s.loop.Do(ctx, func() {
		if s.stopped {
			connErr = ErrStopped
			return
		}
		if s.started {
			return
		}
		s.started = true
		s.rec.Bind(s.router)

		connErr = s.conn.Connect()
		s.rec.Refresh(func(err error) {
			if err != nil {
				s.logger.Warn("initial fetch failed", "error", err)
				return
			}
			s.logger.Info("initial fetch complete", "bots", s.rec.Len())
		})
	})
	if err != nil {
		return err
	}
	return connErr
}

// Stop disconnects and cancels every pending timer and fetch. A stopped
// Syncer cannot be started again.
func (s *Syncer) Stop(ctx context.Context) error {
	return s.loop.Do(ctx, func() {
		s.fallback.Stop()
		s.rec.Stop()
		s.conn.Disconnect()
		s.timers.CancelAll()
		s.started = false
		s.stopped = true
		s.logger.Info("syncer stopped")
	})
}

// Connect opens the connection unless one is open or opening.
func (s *Syncer) Connect(ctx context.Context) error {
	var connErr error
	if err := s.loop.Do(ctx, func() { connErr = s.conn.Connect() }); err != nil {
		return err
	}
	return connErr
}

// Disconnect closes the connection. No reconnect follows.
func (s *Syncer) Disconnect(ctx context.Context) error {
	return s.loop.Do(ctx, s.conn.Disconnect)
}

// Join adds a bot room. Returns false if it was already joined.
func (s *Syncer) Join(ctx context.Context, id string) (bool, error) {
	var added bool
	err := s.loop.Do(ctx, func() { added = s.rooms.Join(id) })
	return added, err
}

// Leave removes a bot room. Returns false if it was not joined.
func (s *Syncer) Leave(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.loop.Do(ctx, func() { removed = s.rooms.Leave(id) })
	return removed, err
}

// Refresh runs a full fetch and waits for its result.
func (s *Syncer) Refresh(ctx context.Context) error {
	result := make(chan error, 1)
	err := s.loop.Do(ctx, func() {
		if !s.started {
			result <- ErrNotStarted
			return
		}
		s.rec.Refresh(func(err error) { result <- err })
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-s.loop.Done():
		return eventloop.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bot returns the merged view of one bot.
func (s *Syncer) Bot(ctx context.Context, id string) (model.BotView, bool, error) {
	var (
		v  model.BotView
		ok bool
	)
	err := s.loop.Do(ctx, func() { v, ok = s.rec.View(id) })
	return v, ok, err
}

// Snapshot copies the current state.
func (s *Syncer) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.loop.Do(ctx, func() { snap = s.snapshot() })
	return snap, err
}

func (s *Syncer) snapshot() Snapshot {
	return Snapshot{
		State:          s.conn.State(),
		Connected:      s.conn.IsConnected(),
		LastError:      s.conn.LastError(),
		Bots:           s.rec.Views(),
		Rooms:          s.rooms.Members(),
		LastRefreshed:  s.rec.LastRefreshed(),
		LastFetchError: s.rec.LastFetchError(),
		Refreshing:     s.rec.Refreshing(),
		Router:         s.router.Stats(),
		Reconciler:     s.rec.Stats(),
		Connection:     s.conn.Stats(),
		Fallback:       s.fallback.Stats(),
	}
}

// On registers h for events named name. h runs on the event loop. The
// returned function removes the registration; it may be called from any
// goroutine and more than once.
func (s *Syncer) On(name string, h router.Handler) func() {
	var unsub func()
	s.loop.Post(func() { unsub = s.router.On(name, h) })

	return func() {
		s.loop.Post(func() {
			if unsub != nil {
				unsub()
				unsub = nil
			}
		})
	}
}

func (s *Syncer) onStateChange(prev, next connection.State) {
	s.fallback.Observe(prev, next)

	if next != connection.StateConnected {
		return
	}

	rejoined := s.rooms.Resync()
	if !s.everConnected {
		s.everConnected = true
		s.logger.Info("connected", "rooms", rejoined)
		return
	}

	s.logger.Info("reconnected", "rooms_rejoined", rejoined)
	if s.cfg.RefreshOnReconnect && s.started {
		s.rec.Refresh(nil)
	}
}
