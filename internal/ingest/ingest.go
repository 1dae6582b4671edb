package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rickgao/econcal/internal/batcher"
	"github.com/rickgao/econcal/internal/model"
)

// Observer records ingest runs.
type Observer interface {
	ObserveIngest(written, unchanged, skipped int, err error)
}

// Config holds ingester configuration.
type Config struct {
	Schedule  string        // Standard 5-field cron spec (default: every 15m)
	Sources   []string      // Source names to pull; empty means all
	Lookback  time.Duration // Range start before now (default: 24h)
	Lookahead time.Duration // Range end after now (default: 14d)
	Timeout   time.Duration // Per-run deadline (default: 5m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:  "*/15 * * * *",
		Lookback:  24 * time.Hour,
		Lookahead: 14 * 24 * time.Hour,
		Timeout:   5 * time.Minute,
	}
}

// Stats tracks ingest activity.
type Stats struct {
	Runs      int64
	Failures  int64
	Fetched   int64
	Dupes     int64
	Written   int64
	Unchanged int64
	Skipped   int64
	LastRun   time.Time
	LastError string
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithObserver sets the run observer.
func WithObserver(o Observer) Option {
	return func(i *Ingester) { i.observer = o }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) {
		if now != nil {
			i.now = now
		}
	}
}

// Ingester pulls events from a source and writes them to a sink.
type Ingester struct {
	cfg      Config
	source   batcher.RangeQuerier
	sink     Sink
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	// runMu serializes runs; a slow run makes the next tick wait.
	runMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Ingester.
func New(cfg Config, source batcher.RangeQuerier, sink Sink, logger *slog.Logger, opts ...Option) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Ingester{
		cfg:    cfg,
		source: source,
		sink:   sink,
		logger: logger.With("component", "ingest"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start schedules runs on the configured cron spec.
func (i *Ingester) Start(ctx context.Context) error {
	i.ctx, i.cancel = context.WithCancel(ctx)

	i.cron = cron.New(cron.WithLocation(time.UTC))
	_, err := i.cron.AddFunc(i.cfg.Schedule, func() {
		if _, err := i.RunOnce(i.ctx); err != nil {
			i.logger.Error("scheduled ingest failed", "error", err)
		}
	})
	if err != nil {
		i.cancel()
		return fmt.Errorf("ingest schedule %q: %w", i.cfg.Schedule, err)
	}
	i.cron.Start()

	i.logger.Info("ingester started",
		"schedule", i.cfg.Schedule,
		"sources", i.cfg.Sources,
	)
	return nil
}

// Stop halts the schedule and waits for a running ingest to finish.
func (i *Ingester) Stop(ctx context.Context) error {
	if i.cancel != nil {
		i.cancel()
	}
	if i.cron == nil {
		return nil
	}

	select {
	case <-i.cron.Stop().Done():
		i.logger.Info("ingester stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one ingest pass.
func (i *Ingester) RunOnce(ctx context.Context) (WriteResult, error) {
	i.runMu.Lock()
	defer i.runMu.Unlock()

	if i.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.Timeout)
		defer cancel()
	}

	started := i.now()
	from := started.Add(-i.cfg.Lookback)
	to := started.Add(i.cfg.Lookahead)

	res, fetched, dupes, err := i.run(ctx, from.UnixMilli(), to.UnixMilli())
	if i.observer != nil {
		i.observer.ObserveIngest(res.Written, res.Unchanged, res.Skipped, err)
	}

	i.statsMu.Lock()
	i.stats.Runs++
	i.stats.Fetched += int64(fetched)
	i.stats.Dupes += int64(dupes)
	i.stats.Written += int64(res.Written)
	i.stats.Unchanged += int64(res.Unchanged)
	i.stats.Skipped += int64(res.Skipped)
	i.stats.LastRun = started
	i.stats.LastError = ""
	if err != nil {
		i.stats.Failures++
		i.stats.LastError = err.Error()
	}
	i.statsMu.Unlock()

	if err != nil {
		return res, err
	}

	i.logger.Info("ingest complete",
		"from", from.UTC().Format(time.RFC3339),
		"to", to.UTC().Format(time.RFC3339),
		"fetched", fetched,
		"duplicates", dupes,
		"written", res.Written,
		"unchanged", res.Unchanged,
		"skipped", res.Skipped,
		"duration", time.Since(started),
	)
	return res, nil
}

func (i *Ingester) run(ctx context.Context, start, end int64) (WriteResult, int, int, error) {
	events, err := i.source.QueryRange(ctx, start, end, model.Filters{Sources: i.cfg.Sources})
	if err != nil {
		return WriteResult{}, 0, 0, fmt.Errorf("fetch: %w", err)
	}

	unique := Dedupe(events)
	dupes := len(events) - len(unique)
	if len(unique) == 0 {
		return WriteResult{}, len(events), dupes, nil
	}

	res, err := i.sink.Write(ctx, unique)
	if err != nil {
		return res, len(events), dupes, fmt.Errorf("write: %w", err)
	}
	return res, len(events), dupes, nil
}

// Stats returns accumulated activity.
func (i *Ingester) Stats() Stats {
	i.statsMu.Lock()
	defer i.statsMu.Unlock()
	return i.stats
}

// Dedupe drops events sharing a (source, id) key, keeping the last
// occurrence in its original position. Missing IDs are filled from
// model.EventKey first. The input slice is not modified.
func Dedupe(events []model.Event) []model.Event {
	keyed := make([]model.Event, len(events))
	copy(keyed, events)
	model.EnsureIDs(keyed)

	last := make(map[string]int, len(keyed))
	for idx, e := range keyed {
		last[e.Source+"\x00"+e.ID] = idx
	}

	out := make([]model.Event, 0, len(last))
	for idx, e := range keyed {
		if last[e.Source+"\x00"+e.ID] == idx {
			out = append(out, e)
		}
	}
	return out
}
