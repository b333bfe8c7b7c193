package config

import "time"

// Config is the root configuration for a botsyncd instance.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Connection ConnectionConfig `yaml:"connection"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Fallback   FallbackConfig   `yaml:"fallback"`
	Journal    JournalConfig    `yaml:"journal"`
	Database   DBConfig         `yaml:"database"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
}

// APIConfig holds bot backend REST settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"` // for ping and single-bot reads; 0 disables
}

// AuthConfig says where the bearer token comes from. Sources are tried in
// order: token, token_file, token_env.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	TokenEnv  string `yaml:"token_env"`
	EnvFile   string `yaml:"env_file"` // optional .env loaded before lookup
}

// ConnectionConfig holds push channel settings.
type ConnectionConfig struct {
	URL               string        `yaml:"url"` // derived from api.base_url when empty
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	ErrorRetryDelay   time.Duration `yaml:"error_retry_delay"`
	DropRetryDelay    time.Duration `yaml:"drop_retry_delay"`
}

// ReconcilerConfig holds merge and refresh settings.
type ReconcilerConfig struct {
	ConnectedFetchDelay time.Duration `yaml:"connected_fetch_delay"`
	ChangeFetchDelay    time.Duration `yaml:"change_fetch_delay"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
	AutoJoin            *bool         `yaml:"auto_join"`
	RefreshOnReconnect  *bool         `yaml:"refresh_on_reconnect"`
	Rooms               []string      `yaml:"rooms"` // joined at startup
}

// FallbackConfig holds fallback poll settings.
type FallbackConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// JournalConfig holds activity journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HTTPConfig holds the status API and metrics listener settings.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Retries returns the configured retry count, DefaultMaxRetries when unset.
func (a APIConfig) Retries() int {
	if a.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *a.MaxRetries
}

// AutoJoinEnabled reports whether active bots get their rooms joined
// after each fetch. Defaults to true.
func (r ReconcilerConfig) AutoJoinEnabled() bool {
	return r.AutoJoin == nil || *r.AutoJoin
}

// RefreshOnReconnectEnabled reports whether a reconnect triggers a full
// fetch. Defaults to true.
func (r ReconcilerConfig) RefreshOnReconnectEnabled() bool {
	return r.RefreshOnReconnect == nil || *r.RefreshOnReconnect
}
