// calsync copies events from the configured upstream sources into the
// ingest sink (Postgres or S3 day documents).
// Usage: calsync -config configs/econcal.yaml [-schedule]
//
// Without -schedule it performs one ingest pass and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/econcal/internal/backend"
	"github.com/rickgao/econcal/internal/config"
	"github.com/rickgao/econcal/internal/database"
	"github.com/rickgao/econcal/internal/ingest"
	"github.com/rickgao/econcal/internal/store"
	"github.com/rickgao/econcal/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/econcal.yaml", "path to config file")
	scheduled := flag.Bool("schedule", false, "keep running on the configured cron schedule")
	flag.Parse()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err == nil {
		// The ingest section is what calsync runs, whether or not the
		// server enables it.
		cfg.Ingest.Enabled = true
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting calsync",
		"version", version.Version,
		"config", *configPath,
		"sink", cfg.Ingest.Sink,
		"scheduled", *scheduled,
	)

	if err := run(cfg, *scheduled, logger); err != nil {
		logger.Error("calsync failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, scheduled bool, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var pool *pgxpool.Pool
	var db store.DB
	if cfg.HasPostgres() {
		if cfg.Database.AppName == "" {
			cfg.Database.AppName = "calsync"
		}
		var err error
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = pool
	}

	src, err := backend.Build(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	sink, err := backend.NewSink(ctx, cfg.Ingest, db, logger)
	if err != nil {
		return err
	}

	icfg := ingest.DefaultConfig()
	icfg.Schedule = cfg.Ingest.Schedule
	icfg.Sources = cfg.Ingest.Sources
	icfg.Lookback = cfg.Ingest.Lookback
	icfg.Lookahead = cfg.Ingest.Lookahead
	ing := ingest.New(icfg, src, sink, logger)

	if !scheduled {
		res, err := ing.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("written=%d unchanged=%d skipped=%d\n", res.Written, res.Unchanged, res.Skipped)
		return nil
	}

	if err := ing.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := ing.Stop(shutdownCtx); err != nil {
		return err
	}

	s := ing.Stats()
	logger.Info("calsync stopped",
		"runs", s.Runs,
		"failures", s.Failures,
		"written", s.Written,
	)
	return nil
}
