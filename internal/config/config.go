package config

import "time"

// Source types.
const (
	SourceREST     = "rest"
	SourcePostgres = "postgres"
	SourceS3       = "s3"
	SourceICS      = "ics"
)

// Ingest sinks.
const (
	SinkPostgres = "postgres"
	SinkS3       = "s3"
)

// Config is the root configuration for an econcal instance.
type Config struct {
	Instance       InstanceConfig       `yaml:"instance"`
	Logging        LoggingConfig        `yaml:"logging"`
	Server         ServerConfig         `yaml:"server"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Classification ClassificationConfig `yaml:"classification"`
	Batcher        BatcherConfig        `yaml:"batcher"`
	Sources        []SourceConfig       `yaml:"sources"`
	Database       DBConfig             `yaml:"database"`
	Surfaces       []SurfaceConfig      `yaml:"surfaces"`
	Ingest         IngestConfig         `yaml:"ingest"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Auth            AuthConfig    `yaml:"auth"`
}

// AuthConfig enables signed-request verification on the API routes.
// Verification is off when Keys is empty.
type AuthConfig struct {
	Keys    []KeyConfig   `yaml:"keys"`
	MaxSkew time.Duration `yaml:"max_skew"`
}

// KeyConfig maps an access key ID to an RSA public key PEM file.
type KeyConfig struct {
	ID            string `yaml:"id"`
	PublicKeyPath string `yaml:"public_key_path"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ClassificationConfig holds classification policy.
type ClassificationConfig struct {
	NowWindow time.Duration `yaml:"now_window"`
}

// BatcherConfig holds query batcher policy.
type BatcherConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	ShareInFlight bool          `yaml:"share_in_flight"`
}

// SourceConfig describes one named range-query backend. Only the block
// matching Type is read.
type SourceConfig struct {
	Name string     `yaml:"name"`
	Type string     `yaml:"type"`
	REST RESTConfig `yaml:"rest"`
	S3   S3Config   `yaml:"s3"`
	ICS  ICSConfig  `yaml:"ics"`
}

// RESTConfig holds calendar REST API settings.
type RESTConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`          // sent as a bearer token when no signing key is set
	KeyID          string        `yaml:"key_id"`           // access key ID for signed requests
	PrivateKeyPath string        `yaml:"private_key_path"` // RSA private key PEM file
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	PageLimit      int           `yaml:"page_limit"`
}

// S3Config holds document store settings.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	MaxDays      int    `yaml:"max_days"`
	Concurrency  int    `yaml:"concurrency"`
}

// ICSConfig holds iCalendar feed settings.
type ICSConfig struct {
	Feeds    []FeedConfig  `yaml:"feeds"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Currency string        `yaml:"currency"` // stamped on events that carry none
}

// FeedConfig is one ICS feed.
type FeedConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"ssl_mode"`
	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	AppName        string        `yaml:"application_name"` // reported in pg_stat_activity
}

// SurfaceConfig describes one polling surface.
type SurfaceConfig struct {
	Name       string        `yaml:"name"`
	Timezone   string        `yaml:"timezone"`
	Tick       time.Duration `yaml:"tick"`
	Refresh    time.Duration `yaml:"refresh"`
	Lookback   time.Duration `yaml:"lookback"`
	Lookahead  time.Duration `yaml:"lookahead"`
	Impacts    []string      `yaml:"impacts"`
	Currencies []string      `yaml:"currencies"`
	Sources    []string      `yaml:"sources"`
}

// IngestConfig holds scheduled ingest settings.
type IngestConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Schedule  string        `yaml:"schedule"` // standard 5-field cron expression
	Sources   []string      `yaml:"sources"`
	Lookback  time.Duration `yaml:"lookback"`
	Lookahead time.Duration `yaml:"lookahead"`
	Sink      string        `yaml:"sink"`
	S3        S3Config      `yaml:"s3"` // used when Sink is s3
}

// HasPostgres reports whether any source or the ingest sink needs the database.
func (c *Config) HasPostgres() bool {
	for _, s := range c.Sources {
		if s.Type == SourcePostgres {
			return true
		}
	}
	return c.Ingest.Enabled && c.Ingest.Sink == SinkPostgres
}

// Source returns the named source.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}
