package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "botsync_connection_state",
			Help: "Current push connection state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	ConnectionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsync_connection_events_total",
			Help: "Push connection lifecycle events",
		},
		[]string{"kind"}, // attempt, open, handshake_failure, drop, reconnect_scheduled
	)
)

// Event routing metrics
var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botsync_events_total",
			Help: "Inbound push events by event name",
		},
		[]string{"event"},
	)

	EventParseErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botsync_event_parse_errors_total",
			Help: "Inbound events dropped because the payload could not be decoded",
		},
	)
)

// Reconciliation metrics
var (
	FetchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botsync_fetches_total",
			Help: "Full fetches started",
		},
	)

	FetchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botsync_fetch_failures_total",
			Help: "Full fetches that failed",
		},
	)

	FallbackTriggeredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botsync_fallback_triggered_total",
			Help: "Full fetches triggered by the fallback poll",
		},
	)

	LastRefreshTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botsync_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful full fetch",
		},
	)

	BotsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "botsync_bots",
			Help: "Bots held locally by status",
		},
		[]string{"status"},
	)

	BotsReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botsync_bots_ready",
			Help: "Bots currently reported ready",
		},
	)

	RoomsJoined = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botsync_rooms_joined",
			Help: "Bot rooms currently joined",
		},
	)
)

// Journal metrics
var (
	JournalBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botsync_journal_buffered",
			Help: "Activity entries waiting to be written",
		},
	)

	JournalDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botsync_journal_dropped_total",
			Help: "Activity entries discarded because the buffer was full",
		},
	)

	JournalWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botsync_journal_written_total",
			Help: "Activity entries written to the database",
		},
	)

	JournalWriteErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botsync_journal_write_errors_total",
			Help: "Failed journal batch writes",
		},
	)

	JournalFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "botsync_journal_flush_duration_seconds",
			Help:    "Time to write one journal batch",
			Buckets: prometheus.DefBuckets,
		},
	)
)
