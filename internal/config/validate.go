package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rickgao/econcal/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q must be json or text", c.Logging.Format)
	}

	for i, k := range c.Server.Auth.Keys {
		if k.ID == "" {
			return fmt.Errorf("server.auth.keys[%d].id is required", i)
		}
		if k.PublicKeyPath == "" {
			return fmt.Errorf("server.auth.keys[%d].public_key_path is required", i)
		}
	}

	if c.Classification.NowWindow <= 0 {
		return errors.New("classification.now_window must be > 0")
	}
	if c.Batcher.Debounce <= 0 {
		return errors.New("batcher.debounce must be > 0")
	}

	if len(c.Sources) == 0 {
		return errors.New("sources: at least one source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		prefix := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if seen[s.Name] {
			return fmt.Errorf("%s.name %q is duplicated", prefix, s.Name)
		}
		seen[s.Name] = true
		if err := s.validate(prefix); err != nil {
			return err
		}
	}

	if c.HasPostgres() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(c.Surfaces))
	for i := range c.Surfaces {
		s := &c.Surfaces[i]
		prefix := fmt.Sprintf("surfaces[%d]", i)
		if s.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if names[s.Name] {
			return fmt.Errorf("%s.name %q is duplicated", prefix, s.Name)
		}
		names[s.Name] = true
		if err := s.validate(prefix, seen); err != nil {
			return err
		}
	}

	if c.Ingest.Enabled {
		if err := c.Ingest.validate("ingest", seen); err != nil {
			return err
		}
	}

	return nil
}

func (s *SourceConfig) validate(prefix string) error {
	switch s.Type {
	case SourceREST:
		if s.REST.BaseURL == "" {
			return fmt.Errorf("%s.rest.base_url is required", prefix)
		}
		if s.REST.PrivateKeyPath != "" && s.REST.KeyID == "" {
			return fmt.Errorf("%s.rest.key_id is required with private_key_path", prefix)
		}
		if s.REST.MaxRetries < 0 {
			return fmt.Errorf("%s.rest.max_retries must be >= 0", prefix)
		}
		if s.REST.PageLimit < 1 {
			return fmt.Errorf("%s.rest.page_limit must be >= 1", prefix)
		}
	case SourcePostgres:
	case SourceS3:
		if err := s.S3.validate(prefix + ".s3"); err != nil {
			return err
		}
	case SourceICS:
		if len(s.ICS.Feeds) == 0 {
			return fmt.Errorf("%s.ics.feeds: at least one feed is required", prefix)
		}
		for j, f := range s.ICS.Feeds {
			if f.URL == "" {
				return fmt.Errorf("%s.ics.feeds[%d].url is required", prefix, j)
			}
		}
	case "":
		return fmt.Errorf("%s.type is required", prefix)
	default:
		return fmt.Errorf("%s.type %q must be one of rest, postgres, s3, ics", prefix, s.Type)
	}
	return nil
}

func (s3 *S3Config) validate(prefix string) error {
	if s3.Bucket == "" {
		return fmt.Errorf("%s.bucket is required", prefix)
	}
	if s3.MaxDays < 1 {
		return fmt.Errorf("%s.max_days must be >= 1", prefix)
	}
	if s3.Concurrency < 1 {
		return fmt.Errorf("%s.concurrency must be >= 1", prefix)
	}
	return nil
}

func (s *SurfaceConfig) validate(prefix string, sources map[string]bool) error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%s.timezone %q: %w", prefix, s.Timezone, err)
	}
	if s.Tick <= 0 {
		return fmt.Errorf("%s.tick must be > 0", prefix)
	}
	if s.Refresh <= 0 {
		return fmt.Errorf("%s.refresh must be > 0", prefix)
	}
	if s.Lookback < 0 || s.Lookahead < 0 {
		return fmt.Errorf("%s.lookback and lookahead must be >= 0", prefix)
	}
	for j, imp := range s.Impacts {
		if model.ParseImpact(imp) == model.ImpactNone {
			return fmt.Errorf("%s.impacts[%d]: unknown impact %q", prefix, j, imp)
		}
	}
	for j, name := range s.Sources {
		if !sources[name] {
			return fmt.Errorf("%s.sources[%d]: unknown source %q", prefix, j, name)
		}
	}
	return nil
}

func (in *IngestConfig) validate(prefix string, sources map[string]bool) error {
	if _, err := cron.ParseStandard(in.Schedule); err != nil {
		return fmt.Errorf("%s.schedule %q: %w", prefix, in.Schedule, err)
	}
	for j, name := range in.Sources {
		if !sources[name] {
			return fmt.Errorf("%s.sources[%d]: unknown source %q", prefix, j, name)
		}
	}
	if in.Lookback < 0 || in.Lookahead < 0 {
		return fmt.Errorf("%s.lookback and lookahead must be >= 0", prefix)
	}
	switch in.Sink {
	case SinkPostgres:
	case SinkS3:
		if err := in.S3.validate(prefix + ".s3"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s.sink %q must be postgres or s3", prefix, in.Sink)
	}
	return nil
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
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
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
