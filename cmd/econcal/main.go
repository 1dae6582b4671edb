// econcal serves the economic calendar: surface drivers classify events
// every tick, snapshots stream over /ws, and range queries are batched
// across the configured sources.
// Usage: econcal -config configs/econcal.yaml
package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/econcal/internal/auth"
	"github.com/rickgao/econcal/internal/backend"
	"github.com/rickgao/econcal/internal/batcher"
	"github.com/rickgao/econcal/internal/config"
	"github.com/rickgao/econcal/internal/database"
	"github.com/rickgao/econcal/internal/dayboundary"
	"github.com/rickgao/econcal/internal/ingest"
	"github.com/rickgao/econcal/internal/metrics"
	"github.com/rickgao/econcal/internal/model"
	"github.com/rickgao/econcal/internal/store"
	"github.com/rickgao/econcal/internal/stream"
	"github.com/rickgao/econcal/internal/surface"
	"github.com/rickgao/econcal/internal/version"
	"github.com/rickgao/econcal/internal/web"
)

func main() {
	configPath := flag.String("config", "configs/econcal.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting econcal",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("econcal failed", "error", err)
		os.Exit(1)
	}
	logger.Info("econcal stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database when a source or the ingest sink needs it
	var pool *pgxpool.Pool
	var db store.DB
	if cfg.HasPostgres() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		var err error
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = pool
		logger.Info("database connected")
	}

	src, err := backend.Build(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Query batcher in front of the router
	var batchOpts []batcher.Option
	if m != nil {
		batchOpts = append(batchOpts, batcher.WithObserver(m))
	}
	b := batcher.New(batcher.Config{
		Debounce:      cfg.Batcher.Debounce,
		ShareInFlight: cfg.Batcher.ShareInFlight,
	}, src, logger, batchOpts...)
	defer b.Close()

	// Snapshot hub
	var hubOpts []stream.HubOption
	if m != nil {
		hubOpts = append(hubOpts, stream.WithObserver(m))
	}
	hub := stream.NewHub(stream.DefaultHubConfig(), logger, hubOpts...)

	// Surface drivers
	webOpts := []web.Option{
		web.WithQuerier(b),
		web.WithStream(hub),
	}
	drivers := make([]*surface.Driver, 0, len(cfg.Surfaces))
	for _, sc := range cfg.Surfaces {
		opts := []surface.Option{surface.WithPublisher(hub)}
		if m != nil {
			opts = append(opts, surface.WithObserver(m))
		}
		d := surface.New(surfaceConfig(sc, cfg.Classification.NowWindow, logger), b, logger, opts...)
		drivers = append(drivers, d)
		webOpts = append(webOpts, web.WithSurface(d))
	}
	for _, d := range drivers {
		if err := d.Start(ctx); err != nil {
			return err
		}
	}

	// Scheduled ingest
	var ing *ingest.Ingester
	if cfg.Ingest.Enabled {
		sink, err := backend.NewSink(ctx, cfg.Ingest, db, logger)
		if err != nil {
			return err
		}
		var opts []ingest.Option
		if m != nil {
			opts = append(opts, ingest.WithObserver(m))
		}
		ing = ingest.New(ingestConfig(cfg.Ingest), src, sink, logger, opts...)
		if err := ing.Start(ctx); err != nil {
			return err
		}
	}

	// HTTP server
	if pool != nil {
		webOpts = append(webOpts, web.WithDatabase(pool))
	}
	if m != nil {
		webOpts = append(webOpts, web.WithMetrics(m.Handler()))
	}
	if len(cfg.Server.Auth.Keys) > 0 {
		v, err := newVerifier(cfg.Server.Auth, logger)
		if err != nil {
			return err
		}
		webOpts = append(webOpts, web.WithVerifier(v))
	}

	srv := web.NewServer(web.Config{
		NowWindow:   cfg.Classification.NowWindow,
		MetricsPath: cfg.Metrics.Path,
	}, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "listen", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logger.Info("econcal running",
		"surfaces", len(drivers),
		"sources", src.Names(),
		"ingest", cfg.Ingest.Enabled,
	)

	// Wait for shutdown
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		cancel()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	hub.Close()
	for _, d := range drivers {
		if err := d.Stop(shutdownCtx); err != nil {
			logger.Warn("surface driver stop", "surface", d.Name(), "error", err)
		}
	}
	if ing != nil {
		if err := ing.Stop(shutdownCtx); err != nil {
			logger.Warn("ingester stop", "error", err)
		}
	}
	if n := b.Abandon(); n > 0 {
		logger.Info("abandoned pending queries", "requests", n)
	}
	return runErr
}

func surfaceConfig(sc config.SurfaceConfig, nowWindow time.Duration, logger *slog.Logger) surface.Config {
	c := surface.DefaultConfig()
	c.Name = sc.Name
	c.Location = dayboundary.ResolveLocation(sc.Timezone, logger)
	c.Tick = sc.Tick
	c.Refresh = sc.Refresh
	c.Lookback = sc.Lookback
	c.Lookahead = sc.Lookahead
	c.NowWindow = nowWindow
	c.Filters = model.Filters{
		Currencies: sc.Currencies,
		Sources:    sc.Sources,
	}
	for _, s := range sc.Impacts {
		c.Filters.Impacts = append(c.Filters.Impacts, model.ParseImpact(s))
	}
	return c
}

func ingestConfig(ic config.IngestConfig) ingest.Config {
	c := ingest.DefaultConfig()
	c.Schedule = ic.Schedule
	c.Sources = ic.Sources
	c.Lookback = ic.Lookback
	c.Lookahead = ic.Lookahead
	return c
}

func newVerifier(ac config.AuthConfig, logger *slog.Logger) (*auth.Verifier, error) {
	keys := make(map[string]*rsa.PublicKey, len(ac.Keys))
	for _, k := range ac.Keys {
		pub, err := auth.LoadPublicKey(k.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		keys[k.ID] = pub
	}
	logger.Info("request signing enabled", "keys", len(keys))
	return auth.NewVerifier(keys, ac.MaxSkew, logger), nil
}
