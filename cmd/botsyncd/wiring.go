package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/unifyhq/botsync/internal/auth"
	"github.com/unifyhq/botsync/internal/botstate"
	"github.com/unifyhq/botsync/internal/botsync"
	"github.com/unifyhq/botsync/internal/config"
	"github.com/unifyhq/botsync/internal/connection"
	"github.com/unifyhq/botsync/internal/journal"
	"github.com/unifyhq/botsync/internal/poller"
	"github.com/unifyhq/botsync/internal/router"
)

// countedEvents are the routed events counted by the events metric.
var countedEvents = []string{
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
	router.EventPong,
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", cfg.Format)
	}
}

func tokenProvider(cfg config.AuthConfig) auth.TokenProvider {
	return auth.FromSources(auth.Sources{
		Token:     cfg.Token,
		TokenFile: cfg.TokenFile,
		TokenEnv:  cfg.TokenEnv,
	})
}

func wsConfig(cfg config.ConnectionConfig) connection.WSConfig {
	return connection.WSConfig{
		URL:              cfg.URL,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		PingInterval:     cfg.PingInterval,
		ReadTimeout:      cfg.ReadTimeout,
	}
}

func syncerConfig(cfg *config.Config) botsync.Config {
	return botsync.Config{
		Connection: connection.Config{
			KeepaliveInterval: cfg.Connection.KeepaliveInterval,
			ErrorRetryDelay:   cfg.Connection.ErrorRetryDelay,
			DropRetryDelay:    cfg.Connection.DropRetryDelay,
		},
		Reconciler: botstate.Config{
			ConnectedFetchDelay: cfg.Reconciler.ConnectedFetchDelay,
			ChangeFetchDelay:    cfg.Reconciler.ChangeFetchDelay,
			FetchTimeout:        cfg.Reconciler.FetchTimeout,
			AutoJoin:            cfg.Reconciler.AutoJoinEnabled(),
		},
		Fallback: poller.Config{
			CheckInterval: cfg.Fallback.CheckInterval,
			StaleAfter:    cfg.Fallback.StaleAfter,
		},
		RefreshOnReconnect: cfg.Reconciler.RefreshOnReconnectEnabled(),
	}
}

func journalConfig(cfg config.JournalConfig) journal.Config {
	return journal.Config{
		BufferSize:    cfg.BufferSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		WriteTimeout:  cfg.WriteTimeout,
	}
}

// retryBackoff is the base delay between REST retries.
const retryBackoff = time.Second
