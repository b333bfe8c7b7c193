package poller

import (
	"log/slog"
	"time"

	"github.com/unifyhq/botsync/internal/connection"
	"github.com/unifyhq/botsync/internal/eventloop"
)

// Refresher is the full-fetch side of the Reconciler.
type Refresher interface {
	Refresh(done func(error))
	LastRefreshed() time.Time
	Refreshing() bool
}

// Config holds fallback configuration.
type Config struct {
	CheckInterval time.Duration // How often staleness is checked (default: 60s)
	StaleAfter    time.Duration // Gap that triggers a fetch (default: 5m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval: time.Minute,
		StaleAfter:    5 * time.Minute,
	}
}

// Stats counts fallback activity.
type Stats struct {
	Checks    int
	Triggered int
	Failures  int
}

// Fallback triggers a full fetch when the push path has gone quiet. It
// must only be used from the event loop.
type Fallback struct {
	cfg    Config
	loop   *eventloop.Loop
	timers *eventloop.Timers
	target Refresher
	logger *slog.Logger

	running bool
	stats   Stats
}

// New creates a stopped Fallback.
func New(cfg Config, loop *eventloop.Loop, timers *eventloop.Timers, target Refresher, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		cfg:    cfg,
		loop:   loop,
		timers: timers,
		target: target,
		logger: logger,
	}
}

// Start begins periodic checks. Starting a running Fallback is a no-op.
func (f *Fallback) Start() {
	if f.running {
		return
	}
	f.running = true
	f.schedule()

	f.logger.Debug("fallback poll started",
		"check_interval", f.cfg.CheckInterval,
		"stale_after", f.cfg.StaleAfter,
	)
}

// Stop cancels the pending check.
func (f *Fallback) Stop() {
	if !f.running {
		return
	}
	f.running = false
	f.timers.Cancel(eventloop.PurposeFallback)
	f.logger.Debug("fallback poll stopped")
}

// Running reports whether checks are scheduled.
func (f *Fallback) Running() bool { return f.running }

// Stats returns activity counters.
func (f *Fallback) Stats() Stats { return f.stats }

// Observe follows connection state: run only while connected. It has the
// signature of connection.StateObserver.
func (f *Fallback) Observe(_, next connection.State) {
	if next == connection.StateConnected {
		f.Start()
		return
	}
	f.Stop()
}

func (f *Fallback) schedule() {
	f.timers.Schedule(eventloop.PurposeFallback, f.cfg.CheckInterval, f.check)
}

func (f *Fallback) check() {
	if !f.running {
		return
	}
	f.stats.Checks++

	gap := f.loop.Now().Sub(f.target.LastRefreshed())
	switch {
	case gap <= f.cfg.StaleAfter:
	case f.target.Refreshing():
		f.logger.Debug("fallback skipped, fetch in flight")
	default:
		f.stats.Triggered++
		f.logger.Info("no recent refresh, polling", "since_last", gap.Round(time.Second))
		f.target.Refresh(func(err error) {
			if err != nil {
				f.stats.Failures++
				f.logger.Warn("fallback refresh failed", "error", err)
			}
		})
	}

	f.schedule()
}
