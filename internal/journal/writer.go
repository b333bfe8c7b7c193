package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unifyhq/botsync/internal/metrics"
	"github.com/unifyhq/botsync/internal/router"
)

// Subscriber registers event handlers.
type Subscriber interface {
	On(name string, h router.Handler) func()
}

// Config holds Writer configuration.
type Config struct {
	BufferSize    int           // maximum buffered entries before the oldest is dropped
	BatchSize     int           // entries per insert
	FlushInterval time.Duration // maximum time an entry waits in the buffer
	WriteTimeout  time.Duration // per batch
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:    10000,
		BatchSize:     200,
		FlushInterval: time.Second,
		WriteTimeout:  10 * time.Second,
	}
}

// Stats contains writer counters.
type Stats struct {
	Recorded int64
	Inserted int64
	Dropped  int64
	Errors   int64
	Flushes  int64
}

// Writer buffers activity entries and writes them in batches.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	store  Store
	buf    *Buffer[Entry]

	// kick wakes the flush loop when a full batch is waiting.
	kick chan struct{}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// flushMu serializes flushes; statsMu guards stats.
	flushMu sync.Mutex
	statsMu sync.Mutex
	stats   Stats
}

// NewWriter creates a Writer.
func NewWriter(cfg Config, store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.BufferSize < cfg.BatchSize {
		cfg.BufferSize = cfg.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	return &Writer{
		cfg:    cfg,
		logger: logger,
		store:  store,
		buf:    NewBuffer[Entry](cfg.BatchSize, cfg.BufferSize),
		kick:   make(chan struct{}, 1),
	}
}

// Attach records every event of the journal's kinds routed by sub. The
// returned function detaches.
func (w *Writer) Attach(sub Subscriber) func() {
	unsubs := make([]func(), 0, len(Kinds))
	for _, kind := range Kinds {
		unsubs = append(unsubs, sub.On(kind, w.Record))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Record buffers one event. It never blocks.
func (w *Writer) Record(ev router.Event) {
	ok, dropped := w.buf.Send(FromEvent(ev))
	if !ok {
		return
	}

	w.statsMu.Lock()
	w.stats.Recorded++
	if dropped {
		w.stats.Dropped++
	}
	w.statsMu.Unlock()

	if dropped {
		metrics.JournalDroppedTotal.Inc()
	}
	n := w.buf.Len()
	metrics.JournalBuffered.Set(float64(n))

	if n >= w.cfg.BatchSize {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Start begins the flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop stops the flush loop and writes what is still buffered, bounded by
// ctx.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}
	w.buf.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	// Final flush
	for w.buf.Len() > 0 {
		if err := w.flush(ctx); err != nil {
			return err
		}
	}

	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		case <-w.kick:
		}

		// Keep going while full batches are waiting.
		for {
			if err := w.flush(w.ctx); err != nil || w.buf.Len() < w.cfg.BatchSize {
				break
			}
		}
	}
}

// flush writes up to one batch. A failed batch is counted and discarded.
func (w *Writer) flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	batch := w.buf.DrainTo(w.cfg.BatchSize)
	metrics.JournalBuffered.Set(float64(w.buf.Len()))
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	writeCtx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
	inserted, err := w.store.Insert(writeCtx, batch)
	cancel()
	metrics.JournalFlushDuration.Observe(time.Since(start).Seconds())

	w.statsMu.Lock()
	w.stats.Inserted += int64(inserted)
	if err != nil {
		w.stats.Errors++
	} else {
		w.stats.Flushes++
	}
	w.statsMu.Unlock()

	metrics.JournalWrittenTotal.Add(float64(inserted))
	if err != nil {
		metrics.JournalWriteErrorsTotal.Inc()
		w.logger.Error("journal batch insert failed", "error", err, "count", len(batch))
		return err
	}

	w.logger.Debug("flushed activity entries",
		"count", len(batch),
		"inserted", inserted,
		"duration", time.Since(start),
	)
	return nil
}
