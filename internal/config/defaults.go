package config

import (
	"net/url"
	"strings"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultBaseURL             = "http://localhost:3001"
	DefaultWSPath              = "/ws"
	DefaultTokenEnv            = "BOTSYNC_TOKEN"
	DefaultAPITimeout          = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultHandshakeTimeout    = 20 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultPingInterval        = 25 * time.Second
	DefaultReadTimeout         = 60 * time.Second
	DefaultKeepaliveInterval   = 60 * time.Second
	DefaultErrorRetryDelay     = 10 * time.Second
	DefaultDropRetryDelay      = 5 * time.Second
	DefaultConnectedFetchDelay = 1 * time.Second
	DefaultChangeFetchDelay    = 500 * time.Millisecond
	DefaultFetchTimeout        = 30 * time.Second
	DefaultCheckInterval       = 1 * time.Minute
	DefaultStaleAfter          = 5 * time.Minute
	DefaultBatchSize           = 200
	DefaultFlushInterval       = 1 * time.Second
	DefaultBufferSize          = 10000
	DefaultJournalWriteTimeout = 10 * time.Second
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 4
	DefaultMinConns            = 1
	DefaultHTTPAddr            = ":9090"
	DefaultMetricsPath         = "/metrics"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.API.MaxRetries = &retries
	}

	// Auth defaults
	if c.Auth.TokenEnv == "" {
		c.Auth.TokenEnv = DefaultTokenEnv
	}

	// Connection defaults
	if c.Connection.URL == "" {
		c.Connection.URL = DeriveWSURL(c.API.BaseURL)
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.ReadTimeout == 0 {
		c.Connection.ReadTimeout = DefaultReadTimeout
	}
	if c.Connection.KeepaliveInterval == 0 {
		c.Connection.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.Connection.ErrorRetryDelay == 0 {
		c.Connection.ErrorRetryDelay = DefaultErrorRetryDelay
	}
	if c.Connection.DropRetryDelay == 0 {
		c.Connection.DropRetryDelay = DefaultDropRetryDelay
	}

	// Reconciler defaults
	if c.Reconciler.ConnectedFetchDelay == 0 {
		c.Reconciler.ConnectedFetchDelay = DefaultConnectedFetchDelay
	}
	if c.Reconciler.ChangeFetchDelay == 0 {
		c.Reconciler.ChangeFetchDelay = DefaultChangeFetchDelay
	}
	if c.Reconciler.FetchTimeout == 0 {
		c.Reconciler.FetchTimeout = DefaultFetchTimeout
	}

	// Fallback defaults
	if c.Fallback.CheckInterval == 0 {
		c.Fallback.CheckInterval = DefaultCheckInterval
	}
	if c.Fallback.StaleAfter == 0 {
		c.Fallback.StaleAfter = DefaultStaleAfter
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}
	if c.Journal.WriteTimeout == 0 {
		c.Journal.WriteTimeout = DefaultJournalWriteTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// HTTP defaults
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

// DeriveWSURL returns the push endpoint on the same host as the REST base
// URL: http becomes ws, https becomes wss, and the path is DefaultWSPath.
// An unparseable base URL yields "".
func DeriveWSURL(base string) string {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = DefaultWSPath
	u.RawQuery = ""
	return u.String()
}
