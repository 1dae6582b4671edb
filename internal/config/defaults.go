package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultListen          = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultAuthMaxSkew     = 5 * time.Minute
	DefaultMetricsPath     = "/metrics"
	DefaultNowWindow       = 10 * time.Minute
	DefaultDebounce        = 50 * time.Millisecond
	DefaultAPITimeout      = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultPageLimit       = 500
	DefaultS3MaxDays       = 62
	DefaultS3Concurrency   = 8
	DefaultICSTimeout      = 30 * time.Second
	DefaultICSCacheTTL     = 5 * time.Minute
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultSurfaceTimezone = "UTC"
	DefaultTick            = time.Second
	DefaultRefresh         = time.Minute
	DefaultLookback        = 24 * time.Hour
	DefaultLookahead       = 7 * 24 * time.Hour
	DefaultIngestSchedule  = "*/15 * * * *"
	DefaultIngestLookahead = 14 * 24 * time.Hour
	DefaultIngestSink      = SinkPostgres
)

// DefaultSurfaceNames are the surfaces created when none are configured.
var DefaultSurfaceNames = []string{"table", "timeline", "modal"}

func (c *Config) applyDefaults() {
	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Server defaults
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.Auth.MaxSkew == 0 {
		c.Server.Auth.MaxSkew = DefaultAuthMaxSkew
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Policy defaults
	if c.Classification.NowWindow == 0 {
		c.Classification.NowWindow = DefaultNowWindow
	}
	if c.Batcher.Debounce == 0 {
		c.Batcher.Debounce = DefaultDebounce
	}

	// Source defaults
	for i := range c.Sources {
		applySourceDefaults(&c.Sources[i])
	}
	applyDBDefaults(&c.Database)

	// Surface defaults
	if len(c.Surfaces) == 0 {
		for _, name := range DefaultSurfaceNames {
			c.Surfaces = append(c.Surfaces, SurfaceConfig{Name: name})
		}
	}
	for i := range c.Surfaces {
		applySurfaceDefaults(&c.Surfaces[i])
	}

	// Ingest defaults
	if c.Ingest.Schedule == "" {
		c.Ingest.Schedule = DefaultIngestSchedule
	}
	if c.Ingest.Lookback == 0 {
		c.Ingest.Lookback = DefaultLookback
	}
	if c.Ingest.Lookahead == 0 {
		c.Ingest.Lookahead = DefaultIngestLookahead
	}
	if c.Ingest.Sink == "" {
		c.Ingest.Sink = DefaultIngestSink
	}
	applyS3Defaults(&c.Ingest.S3)
}

func applySourceDefaults(s *SourceConfig) {
	switch s.Type {
	case SourceREST:
		if s.REST.Timeout == 0 {
			s.REST.Timeout = DefaultAPITimeout
		}
		if s.REST.MaxRetries == 0 {
			s.REST.MaxRetries = DefaultMaxRetries
		}
		if s.REST.PageLimit == 0 {
			s.REST.PageLimit = DefaultPageLimit
		}
	case SourceS3:
		applyS3Defaults(&s.S3)
	case SourceICS:
		if s.ICS.Timeout == 0 {
			s.ICS.Timeout = DefaultICSTimeout
		}
		if s.ICS.CacheTTL == 0 {
			s.ICS.CacheTTL = DefaultICSCacheTTL
		}
	}
}

func applyS3Defaults(s3 *S3Config) {
	if s3.MaxDays == 0 {
		s3.MaxDays = DefaultS3MaxDays
	}
	if s3.Concurrency == 0 {
		s3.Concurrency = DefaultS3Concurrency
	}
}

func applySurfaceDefaults(s *SurfaceConfig) {
	if s.Timezone == "" {
		s.Timezone = DefaultSurfaceTimezone
	}
	if s.Tick == 0 {
		s.Tick = DefaultTick
	}
	if s.Refresh == 0 {
		s.Refresh = DefaultRefresh
	}
	if s.Lookback == 0 {
		s.Lookback = DefaultLookback
	}
	if s.Lookahead == 0 {
		s.Lookahead = DefaultLookahead
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
