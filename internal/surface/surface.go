package surface

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/econcal/internal/batcher"
	"github.com/rickgao/econcal/internal/model"
)

// Observer records per-surface activity.
type Observer interface {
	ObserveClassification(surface string, events, now, next int)
	ObserveRefresh(surface string, err error)
}

// Publisher receives every snapshot a driver produces.
type Publisher interface {
	Publish(snap Snapshot)
}

// PublisherFunc is a function adapter for Publisher.
type PublisherFunc func(Snapshot)

func (f PublisherFunc) Publish(s Snapshot) {
	f(s)
}

// Clock returns the current time.
type Clock func() time.Time

// Config holds driver configuration.
type Config struct {
	Name           string
	Location       *time.Location // Display timezone (default: UTC)
	Tick           time.Duration  // Classification interval (default: 1s)
	Refresh        time.Duration  // Dataset refresh interval (default: 1m)
	Lookback       time.Duration  // Range start before now (default: 24h)
	Lookahead      time.Duration  // Range end after now (default: 7d)
	NowWindow      time.Duration  // NOW window (default: 10m)
	RefreshTimeout time.Duration  // Per-refresh deadline (default: 30s)
	Filters        model.Filters
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Location:       time.UTC,
		Tick:           time.Second,
		Refresh:        time.Minute,
		Lookback:       24 * time.Hour,
		Lookahead:      7 * 24 * time.Hour,
		NowWindow:      10 * time.Minute,
		RefreshTimeout: 30 * time.Second,
	}
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(d *Driver) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithObserver sets the activity observer.
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observer = o }
}

// WithPublisher adds a snapshot publisher.
func WithPublisher(p Publisher) Option {
	return func(d *Driver) {
		if p != nil {
			d.publishers = append(d.publishers, p)
		}
	}
}

// Driver polls one surface: it refreshes its dataset through the querier
// and classifies the current dataset on every tick.
type Driver struct {
	cfg        Config
	querier    batcher.RangeQuerier
	logger     *slog.Logger
	clock      Clock
	observer   Observer
	publishers []Publisher

	mu          sync.RWMutex
	events      []model.Event
	lastRefresh time.Time
	lastErr     error
	snap        Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Driver.
func New(cfg Config, querier batcher.RangeQuerier, logger *slog.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	d := &Driver{
		cfg:     cfg,
		querier: querier,
		logger:  logger.With("component", "surface", "surface", cfg.Name),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.snap = BuildSnapshot(cfg.Name, nil, d.clock().UnixMilli(), cfg.NowWindow, cfg.Location)
	return d
}

// Name returns the surface name.
func (d *Driver) Name() string { return d.cfg.Name }

// Start begins the refresh and tick loops.
func (d *Driver) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.run()

	d.logger.Info("surface driver started",
		"timezone", d.cfg.Location.String(),
		"tick", d.cfg.Tick,
		"refresh", d.cfg.Refresh,
	)
	return nil
}

// Stop gracefully shuts down the driver.
func (d *Driver) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("surface driver stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main loop. Refresh and classify happen immediately on start.
func (d *Driver) run() {
	defer d.wg.Done()

	tick := time.NewTicker(d.cfg.Tick)
	defer tick.Stop()
	refresh := time.NewTicker(d.cfg.Refresh)
	defer refresh.Stop()

	d.Refresh(d.ctx)
	d.Tick()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-refresh.C:
			d.Refresh(d.ctx)
			d.Tick()
		case <-tick.C:
			d.Tick()
		}
	}
}

// Refresh re-queries the surface range around the current time. On failure
// the previous dataset is kept.
func (d *Driver) Refresh(ctx context.Context) error {
	if d.cfg.RefreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.RefreshTimeout)
		defer cancel()
	}

	now := d.clock()
	start := now.Add(-d.cfg.Lookback).UnixMilli()
	end := now.Add(d.cfg.Lookahead).UnixMilli()

	events, err := d.querier.QueryRange(ctx, start, end, d.cfg.Filters)
	if d.observer != nil {
		d.observer.ObserveRefresh(d.cfg.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = err
	if err != nil {
		d.logger.Warn("refresh failed, keeping previous dataset", "error", err)
		return err
	}

	owned := make([]model.Event, len(events))
	copy(owned, events)
	model.EnsureIDs(owned)
	d.events = owned
	d.lastRefresh = now
	d.logger.Debug("surface refreshed", "events", len(owned))
	return nil
}

// Tick classifies the current dataset and publishes the snapshot.
func (d *Driver) Tick() Snapshot {
	now := d.clock()

	d.mu.RLock()
	events := d.events
	lastRefresh := d.lastRefresh
	lastErr := d.lastErr
	d.mu.RUnlock()

	snap := BuildSnapshot(d.cfg.Name, events, now.UnixMilli(), d.cfg.NowWindow, d.cfg.Location)
	if !lastRefresh.IsZero() {
		snap.LastRefresh = &lastRefresh
	}
	if lastErr != nil {
		snap.LastError = lastErr.Error()
	}

	d.mu.Lock()
	d.snap = snap
	d.mu.Unlock()

	if d.observer != nil {
		next := 0
		if snap.Next != nil {
			next = len(snap.Next.IDs)
		}
		d.observer.ObserveClassification(d.cfg.Name, len(snap.Rows), len(snap.Now), next)
	}
	for _, p := range d.publishers {
		p.Publish(snap)
	}
	return snap
}

// Snapshot returns the latest snapshot.
func (d *Driver) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap
}

// Events returns the current dataset.
func (d *Driver) Events() []model.Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Event, len(d.events))
	copy(out, d.events)
	return out
}
