// botsyncd keeps a live view of every bot on the backend, serves it over a
// small HTTP API and optionally journals bot activity to Postgres.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/unifyhq/botsync/internal/api"
	"github.com/unifyhq/botsync/internal/auth"
	"github.com/unifyhq/botsync/internal/botsync"
	"github.com/unifyhq/botsync/internal/clock"
	"github.com/unifyhq/botsync/internal/config"
	"github.com/unifyhq/botsync/internal/connection"
	"github.com/unifyhq/botsync/internal/database"
	"github.com/unifyhq/botsync/internal/eventloop"
	"github.com/unifyhq/botsync/internal/journal"
	"github.com/unifyhq/botsync/internal/metrics"
	"github.com/unifyhq/botsync/internal/statusapi"
	"github.com/unifyhq/botsync/internal/version"
)

const (
	loopQueueSize   = 1024
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		envFile     string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("botsyncd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "configs/botsyncd.yaml", "path to config file")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config is expanded")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println("botsyncd", version.String())
		return nil
	}

	if err := auth.LoadEnvFile(envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}
	if err := auth.LoadEnvFile(cfg.Auth.EnvFile); err != nil {
		return fmt.Errorf("load auth env file: %w", err)
	}

	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	logger.Info("starting botsyncd",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"api_url", cfg.API.BaseURL,
		"ws_url", cfg.Connection.URL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := tokenProvider(cfg.Auth)
	apiClient := api.NewClient(
		cfg.API.BaseURL,
		tokens,
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.Retries(), retryBackoff),
	)

	loop := eventloop.New(clock.Real(), loopQueueSize, logger.With("component", "eventloop"))
	transport := connection.NewWSTransport(wsConfig(cfg.Connection), loop, logger.With("component", "transport"))
	syncer := botsync.New(syncerConfig(cfg), botsync.Deps{
		Loop:      loop,
		Transport: transport,
		Tokens:    tokens,
		Fetcher:   apiClient,
	}, logger)

	// Journal
	var (
		writer        *journal.Writer
		detachJournal = func() {}
	)
	if cfg.Journal.Enabled {
		pool, err := database.Connect(ctx, cfg.Database, logger.With("component", "database"))
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		store := journal.NewPGStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
		writer = journal.NewWriter(journalConfig(cfg.Journal), store, logger.With("component", "journal"))
		if err := writer.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		detachJournal = writer.Attach(syncer)
	}

	detachMetrics := metrics.Attach(syncer, countedEvents...)
	collector := metrics.NewCollector(syncer, 0, logger.With("component", "metrics"))

	server := statusapi.New(syncer, statusapi.Options{
		Addr:        cfg.HTTP.Addr,
		MetricsPath: cfg.HTTP.MetricsPath,
		Pinger:      apiClient,
	}, logger.With("component", "statusapi"))

	// Components run until runCtx is cancelled, which happens only after
	// the syncer has been stopped so Stop can still reach the loop.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		if err := syncer.Run(gctx); !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event loop: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		collector.Start(gctx)
		return nil
	})

	for _, id := range cfg.Reconciler.Rooms {
		if _, err := syncer.Join(ctx, id); err != nil {
			logger.Warn("failed to join configured room", "bot_id", id, "error", err)
		}
	}

	if err := syncer.Start(ctx); err != nil {
		if errors.Is(err, connection.ErrAuthMissing) {
			logger.Error("no bearer token configured; push channel disabled", "token_env", cfg.Auth.TokenEnv)
		} else {
			logger.Error("failed to start syncer", "error", err)
		}
	}

	logger.Info("botsyncd running",
		"http_addr", cfg.HTTP.Addr,
		"rooms", len(cfg.Reconciler.Rooms),
		"journal", cfg.Journal.Enabled,
	)

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case <-gctx.Done():
		logger.Warn("component exited, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := syncer.Stop(shutdownCtx); err != nil {
		logger.Warn("syncer stop", "error", err)
	}
	detachJournal()
	detachMetrics()
	collector.Stop()
	cancelRun()

	runErr := g.Wait()

	if writer != nil {
		if err := writer.Stop(shutdownCtx); err != nil {
			logger.Warn("journal stop", "error", err)
		}
		stats := writer.Stats()
		logger.Info("journal flushed",
			"recorded", stats.Recorded,
			"inserted", stats.Inserted,
			"dropped", stats.Dropped,
			"errors", stats.Errors,
		)
	}

	logger.Info("botsyncd stopped")
	return runErr
}
