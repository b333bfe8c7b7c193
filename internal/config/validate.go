package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.API.Retries() < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if err := validateURL("connection.url", c.Connection.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Connection.KeepaliveInterval < 0 {
		return errors.New("connection.keepalive_interval must be >= 0")
	}
	if c.Connection.ErrorRetryDelay <= 0 || c.Connection.DropRetryDelay <= 0 {
		return errors.New("connection retry delays must be > 0")
	}

	if c.Reconciler.ConnectedFetchDelay < 0 || c.Reconciler.ChangeFetchDelay < 0 {
		return errors.New("reconciler fetch delays must be >= 0")
	}
	for i, id := range c.Reconciler.Rooms {
		if id == "" {
			return fmt.Errorf("reconciler.rooms[%d] is empty", i)
		}
	}

	if c.Fallback.CheckInterval <= 0 {
		return errors.New("fallback.check_interval must be > 0")
	}
	if c.Fallback.StaleAfter <= 0 {
		return errors.New("fallback.stale_after must be > 0")
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < c.Journal.BatchSize {
			return fmt.Errorf("journal.buffer_size (%d) must be >= batch_size (%d)", c.Journal.BufferSize, c.Journal.BatchSize)
		}
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %v URL, got %q", field, schemes, raw)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
