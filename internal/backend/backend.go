package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/econcal/internal/api"
	"github.com/rickgao/econcal/internal/auth"
	"github.com/rickgao/econcal/internal/config"
	"github.com/rickgao/econcal/internal/docstore"
	"github.com/rickgao/econcal/internal/ics"
	"github.com/rickgao/econcal/internal/ingest"
	"github.com/rickgao/econcal/internal/router"
	"github.com/rickgao/econcal/internal/store"
)

// ErrNoDatabase is returned when a Postgres backend or sink is configured
// without a database handle.
var ErrNoDatabase = errors.New("backend: postgres configured but no database connection")

// ingestSource is stamped on sink rows that arrive without a source.
const ingestSource = "ingest"

// retryBackoff is the base delay between REST retries.
const retryBackoff = time.Second

// NewFromConfig builds one backend from sc. db may be nil when no Postgres
// backend is configured.
func NewFromConfig(ctx context.Context, sc config.SourceConfig, db store.DB, logger *slog.Logger) (router.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", sc.Name)

	switch sc.Type {
	case config.SourceREST:
		return newREST(sc, logger)

	case config.SourcePostgres:
		if db == nil {
			return nil, ErrNoDatabase
		}
		s := store.New(db, sc.Name, logger)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case config.SourceS3:
		return newDocstore(ctx, sc.S3, sc.Name, logger)

	case config.SourceICS:
		feeds := make([]ics.Feed, len(sc.ICS.Feeds))
		for i, f := range sc.ICS.Feeds {
			feeds[i] = ics.Feed{ID: f.ID, URL: f.URL}
		}
		fetcher := ics.NewFetcher(nil, sc.ICS.Timeout, sc.ICS.CacheTTL, logger)
		return ics.NewSource(sc.Name, feeds, fetcher, sc.ICS.Currency, logger), nil
	}
	return nil, fmt.Errorf("backend: unknown source type %q", sc.Type)
}

func newREST(sc config.SourceConfig, logger *slog.Logger) (*api.Client, error) {
	rc := sc.REST
	opts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(rc.Timeout),
		api.WithRetries(rc.MaxRetries, retryBackoff),
		api.WithSource(sc.Name),
		api.WithPageLimit(rc.PageLimit),
	}
	if rc.KeyID != "" && rc.PrivateKeyPath != "" {
		creds, err := auth.LoadCredentials(rc.KeyID, rc.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		opts = append(opts, api.WithSigner(creds))
	}
	return api.NewClient(rc.BaseURL, rc.APIKey, opts...), nil
}

func newDocstore(ctx context.Context, sc config.S3Config, source string, logger *slog.Logger) (*docstore.Store, error) {
	client, err := docstore.NewClient(ctx, sc.Region, sc.Endpoint, sc.UsePathStyle)
	if err != nil {
		return nil, err
	}
	return docstore.New(client, docstore.Config{
		Bucket:      sc.Bucket,
		Prefix:      sc.Prefix,
		MaxDays:     sc.MaxDays,
		Concurrency: sc.Concurrency,
	}, source, logger), nil
}

// Build registers every configured source with a new router.
func Build(ctx context.Context, cfg *config.Config, db store.DB, logger *slog.Logger) (*router.Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := router.New(logger)
	for _, sc := range cfg.Sources {
		b, err := NewFromConfig(ctx, sc, db, logger)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		if err := r.Register(sc.Name, b); err != nil {
			return nil, err
		}
		logger.Info("source registered", "source", sc.Name, "type", sc.Type)
	}
	return r, nil
}

// NewSink builds the configured ingest sink.
func NewSink(ctx context.Context, cfg config.IngestConfig, db store.DB, logger *slog.Logger) (ingest.Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Sink {
	case config.SinkPostgres:
		if db == nil {
			return nil, ErrNoDatabase
		}
		s := store.New(db, ingestSource, logger)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return ingest.StoreSink(s), nil

	case config.SinkS3:
		ds, err := newDocstore(ctx, cfg.S3, ingestSource, logger)
		if err != nil {
			return nil, err
		}
		return ingest.DocSink(ds), nil
	}
	return nil, fmt.Errorf("backend: unknown ingest sink %q", cfg.Sink)
}
