package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/unifyhq/botsync/internal/clock"
)

// ErrStopped is returned by Do when the loop is no longer running.
var ErrStopped = errors.New("event loop stopped")

// Loop executes posted closures one at a time.
type Loop struct {
	clock  clock.Clock
	logger *slog.Logger

	// queue is nil for an inline loop.
	queue chan func()

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a queued loop. Closures posted before Run starts are
// buffered and executed once it does.
func New(clk clock.Clock, queueSize int, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Loop{
		clock:  clk,
		logger: logger,
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
	}
}

// NewInline creates a loop that runs every closure synchronously in the
// posting goroutine. The caller is the loop: it must not post from more
// than one goroutine. Used by tests and simulations together with a fake
// clock.
func NewInline(clk clock.Clock) *Loop {
	return &Loop{
		clock:  clk,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
}

// Done is closed when Run returns. Closures posted after that are dropped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Inline reports whether closures run synchronously.
func (l *Loop) Inline() bool { return l.queue == nil }

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time { return l.clock.Now() }

// Post schedules fn to run on the loop. Posting to a stopped loop drops fn.
func (l *Loop) Post(fn func()) {
	if l.queue == nil {
		fn()
		return
	}
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// AfterFunc posts fn to the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) clock.Timer {
	return l.clock.AfterFunc(d, func() { l.Post(fn) })
}

// Go runs blocking work off the loop. The work reports back with Post.
// On an inline loop it runs synchronously.
func (l *Loop) Go(work func()) {
	if l.queue == nil {
		work()
		return
	}
	go work()
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.queue == nil {
		fn()
		return nil
	}

	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.queue <- wrapped:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted closures until ctx is cancelled. It returns
// ctx.Err(). Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	if l.queue == nil {
		return errors.New("eventloop: Run called on inline loop")
	}
	defer l.stopOnce.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			l.execute(fn)
		}
	}
}

// Drain runs closures already queued without waiting for new ones. It is
// used during shutdown after Run has returned.
func (l *Loop) Drain() int {
	if l.queue == nil {
		return 0
	}
	n := 0
	for {
		select {
		case fn := <-l.queue:
			l.execute(fn)
			n++
		default:
			return n
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", "panic", r)
		}
	}()
	fn()
}
