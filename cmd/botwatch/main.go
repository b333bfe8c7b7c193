// botwatch connects to the bot backend push channel and prints every routed
// event to the console.
// Usage: go run ./cmd/botwatch --config configs/botsyncd.yaml --room bot-1 --room bot-2
//
// The bearer token is read the same way botsyncd reads it (auth section of
// the config, BOTSYNC_TOKEN by default).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/unifyhq/botsync/internal/api"
	"github.com/unifyhq/botsync/internal/auth"
	"github.com/unifyhq/botsync/internal/botstate"
	"github.com/unifyhq/botsync/internal/botsync"
	"github.com/unifyhq/botsync/internal/clock"
	"github.com/unifyhq/botsync/internal/config"
	"github.com/unifyhq/botsync/internal/connection"
	"github.com/unifyhq/botsync/internal/eventloop"
	"github.com/unifyhq/botsync/internal/poller"
	"github.com/unifyhq/botsync/internal/router"
)

var watchedEvents = []string{
	router.EventStatusUpdate,
	router.EventConnected,
	router.EventDisconnected,
	router.EventQRGenerated,
	router.EventError,
	router.EventMessageSent,
	router.EventLog,
	router.EventStatsUpdate,
	router.EventUpdated,
	router.EventCreated,
	router.EventDeleted,
}

func main() {
	var (
		configPath    string
		envFile       string
		rooms         []string
		verbose       bool
		autoJoin      bool
		statsInterval time.Duration
	)

	flagSet := pflag.NewFlagSet("botwatch", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "configs/botsyncd.yaml", "path to config file")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config is expanded")
	flagSet.StringSliceVarP(&rooms, "room", "r", nil, "bot id whose room to join (repeatable)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "print full event JSON")
	flagSet.BoolVar(&autoJoin, "auto-join", false, "join rooms for every active bot after each fetch")
	flagSet.DurationVar(&statsInterval, "stats-interval", 10*time.Second, "how often to log counters")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := auth.LoadEnvFile(envFile); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := auth.FromSources(auth.Sources{
		Token:     cfg.Auth.Token,
		TokenFile: cfg.Auth.TokenFile,
		TokenEnv:  cfg.Auth.TokenEnv,
	})
	apiClient := api.NewClient(cfg.API.BaseURL, tokens,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
	)

	loop := eventloop.New(clock.Real(), 1024, logger)
	transport := connection.NewWSTransport(connection.WSConfig{
		URL:              cfg.Connection.URL,
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		PingInterval:     cfg.Connection.PingInterval,
		ReadTimeout:      cfg.Connection.ReadTimeout,
	}, loop, logger)

	syncCfg := botsync.DefaultConfig()
	syncCfg.Reconciler = botstate.Config{
		ConnectedFetchDelay: cfg.Reconciler.ConnectedFetchDelay,
		ChangeFetchDelay:    cfg.Reconciler.ChangeFetchDelay,
		FetchTimeout:        cfg.Reconciler.FetchTimeout,
		AutoJoin:            autoJoin,
	}
	syncCfg.Fallback = poller.Config{
		CheckInterval: cfg.Fallback.CheckInterval,
		StaleAfter:    cfg.Fallback.StaleAfter,
	}
	syncer := botsync.New(syncCfg, botsync.Deps{
		Loop:      loop,
		Transport: transport,
		Tokens:    tokens,
		Fetcher:   apiClient,
	}, logger)

	loopDone := make(chan struct{})
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go func() {
		defer close(loopDone)
		syncer.Run(runCtx)
	}()

	for _, name := range watchedEvents {
		syncer.On(name, func(ev router.Event) {
			printEvent(os.Stdout, ev, verbose)
		})
	}
	for _, id := range rooms {
		syncer.Join(ctx, id)
	}

	logger.Info("connecting", "url", cfg.Connection.URL, "rooms", len(rooms))
	if err := syncer.Start(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap, err := syncer.Snapshot(ctx)
				if err != nil {
					continue
				}
				logger.Info("stats",
					"state", snap.State,
					"bots", len(snap.Bots),
					"rooms", len(snap.Rooms),
					"events_received", snap.Router.Received,
					"events_unhandled", snap.Router.Unhandled,
					"parse_errors", snap.Router.ParseErrors,
					"reconnects", snap.Connection.ReconnectsScheduled,
					"fetches", snap.Reconciler.Fetches,
				)
			}
		}
	}()

	logger.Info("watching - press Ctrl+C to stop")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down...")
	syncer.Stop(shutdownCtx)
	cancelRun()
	<-loopDone

	logger.Info("shutdown complete")
}

func printEvent(w io.Writer, ev router.Event, verbose bool) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = ev.ReceivedAt
	}
	if verbose {
		var pretty any
		if err := json.Unmarshal(ev.Data, &pretty); err == nil {
			data, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Fprintf(w, "[%s] %s bot=%s\n%s\n", ts.Format(time.RFC3339), ev.Name, ev.BotID, data)
			return
		}
	}
	fmt.Fprintf(w, "[%s] %s bot=%s %s\n", ts.Format(time.RFC3339), ev.Name, ev.BotID, summary(ev))
}

// summary picks the most useful field of a payload for one-line output.
func summary(ev router.Event) string {
	var p struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Error   string `json:"error"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return ""
	}
	switch {
	case p.Error != "":
		return "error=" + p.Error
	case p.Status != "":
		return "status=" + p.Status
	case p.Message != "":
		return "message=" + p.Message
	case p.Name != "":
		return "name=" + p.Name
	}
	return ""
}
