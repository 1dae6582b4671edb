package batcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/econcal/internal/daterange"
	"github.com/rickgao/econcal/internal/model"
)

var (
	// ErrNoValidRange fails a whole cycle in which no request had a valid range.
	ErrNoValidRange = errors.New("batcher: no request in batch has a valid date range")

	// ErrInvalidRange rejects a single request whose range does not resolve
	// or ends before it starts.
	ErrInvalidRange = errors.New("batcher: invalid date range")

	// ErrAbandoned rejects requests dropped by Abandon.
	ErrAbandoned = errors.New("batcher: request abandoned")

	// ErrClosed rejects requests made after Close.
	ErrClosed = errors.New("batcher: closed")
)

// RangeQuerier fetches events in [start, end] matching f. Implementations
// must accept wider ranges and filters than any single caller needs.
type RangeQuerier interface {
	QueryRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error)
}

// RangeQueryFunc is a function adapter for RangeQuerier.
type RangeQueryFunc func(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error)

func (fn RangeQueryFunc) QueryRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error) {
	return fn(ctx, start, end, f)
}

// SourceChecker is implemented by upstreams that can reject a source set
// before querying. Requests whose sources fail the check get that error
// rather than an empty slice of a fetch made for other requests.
type SourceChecker interface {
	CheckSources(sources []string) error
}

// Observer receives cycle outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveCycle(requests int, elapsed time.Duration, err error)
	ObserveAbandoned(requests int)
}

type nopObserver struct{}

func (nopObserver) ObserveCycle(int, time.Duration, error) {}
func (nopObserver) ObserveAbandoned(int)                   {}

// Request asks for events between Start and End (inclusive) matching
// Filters. Start and End take any form instant.Resolve accepts.
type Request struct {
	Start   any
	End     any
	Filters model.Filters
}

// Result completes a Request. Exactly one of Events or Err is meaningful;
// Events is non-nil on success even when nothing matched.
type Result struct {
	Events []model.Event
	Err    error
}

// Config holds batcher configuration.
type Config struct {
	Debounce time.Duration // Accumulation window (default: 50ms)

	// ShareInFlight lets a cycle join an upstream call already running for
	// an identical merged query instead of issuing its own.
	ShareInFlight bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Debounce: 50 * time.Millisecond,
	}
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithObserver sets the cycle observer.
func WithObserver(o Observer) Option {
	return func(b *Batcher) {
		if o != nil {
			b.observer = o
		}
	}
}

type pending struct {
	req  Request
	done chan Result
	once sync.Once

	rng      daterange.Range
	valid    bool
	rejected error // from SourceChecker
}

func (p *pending) resolve(r Result) {
	p.once.Do(func() {
		p.done <- r
	})
}

type cycle struct {
	id       uint64
	requests []*pending

	mu        sync.Mutex
	done      bool
	abandoned bool
}

// Batcher is a debounced, coalescing front for a RangeQuerier.
type Batcher struct {
	cfg      Config
	upstream RangeQuerier
	logger   *slog.Logger
	observer Observer
	group    singleflight.Group

	mu       sync.Mutex
	pending  []*pending
	timer    *time.Timer
	gen      uint64
	inFlight map[*cycle]struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Batcher in front of upstream.
func New(cfg Config, upstream RangeQuerier, logger *slog.Logger, opts ...Option) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Batcher{
		cfg:      cfg,
		upstream: upstream,
		logger:   logger.With("component", "batcher"),
		observer: nopObserver{},
		inFlight: make(map[*cycle]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue adds req to the accumulating cycle and returns its completion.
// The channel receives exactly one Result.
func (b *Batcher) Enqueue(req Request) <-chan Result {
	p := &pending{req: req, done: make(chan Result, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		p.resolve(Result{Err: ErrClosed})
		return p.done
	}
	b.pending = append(b.pending, p)
	if b.timer == nil {
		b.gen++
		gen := b.gen
		b.timer = time.AfterFunc(b.cfg.Debounce, func() { b.fire(gen) })
	}
	b.mu.Unlock()

	return p.done
}

// Query enqueues req and waits for its result or for ctx to end. A caller
// that stops waiting does not withdraw the request from its cycle.
func (b *Batcher) Query(ctx context.Context, req Request) ([]model.Event, error) {
	select {
	case r := <-b.Enqueue(req):
		return r.Events, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueryRange lets a Batcher stand in wherever a RangeQuerier is expected.
func (b *Batcher) QueryRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error) {
	return b.Query(ctx, Request{Start: start, End: end, Filters: f})
}

// Pending returns the number of requests waiting for the timer.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Abandon rejects every queued request and every in-flight cycle that has
// not distributed yet, and disarms the timer. It returns the number of
// requests rejected.
func (b *Batcher) Abandon() int {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	queued := b.pending
	b.pending = nil
	cycles := make([]*cycle, 0, len(b.inFlight))
	for c := range b.inFlight {
		cycles = append(cycles, c)
	}
	b.mu.Unlock()

	n := 0
	for _, p := range queued {
		p.resolve(Result{Err: ErrAbandoned})
		n++
	}
	for _, c := range cycles {
		c.mu.Lock()
		if !c.done && !c.abandoned {
			c.abandoned = true
			for _, p := range c.requests {
				p.resolve(Result{Err: ErrAbandoned})
				n++
			}
		}
		c.mu.Unlock()
	}

	if n > 0 {
		b.logger.Info("abandoned pending requests", "requests", n, "in_flight_cycles", len(cycles))
		b.observer.ObserveAbandoned(n)
	}
	return n
}

// Close abandons all pending work, cancels in-flight upstream calls and
// rejects later requests with ErrClosed.
func (b *Batcher) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.Abandon()
	b.cancel()
}

// fire runs when the debounce timer for generation gen expires.
func (b *Batcher) fire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}

	// Take ownership of the pending list. Later enqueues start a new cycle.
	c := &cycle{id: gen, requests: b.pending}
	b.pending = nil
	b.timer = nil
	b.inFlight[c] = struct{}{}
	b.mu.Unlock()

	b.execute(c)

	b.mu.Lock()
	delete(b.inFlight, c)
	b.mu.Unlock()
}

// execute runs one cycle: merge, fetch once, distribute.
func (b *Batcher) execute(c *cycle) {
	start := time.Now()

	valid := make([]*pending, 0, len(c.requests))
	for _, p := range c.requests {
		p.rng, p.valid = daterange.New(p.req.Start, p.req.End)
		if p.valid {
			valid = append(valid, p)
		}
	}

	fetchable := make([]*pending, 0, len(valid))
	for _, p := range valid {
		if p.rejected = b.checkSources(p.req.Filters.Sources); p.rejected == nil {
			fetchable = append(fetchable, p)
		}
	}

	var (
		events []model.Event
		err    error
	)
	switch {
	case len(valid) == 0:
		err = ErrNoValidRange
	case len(fetchable) == 0:
		b.logger.Debug("no request in batch names a known source", "cycle", c.id)
	default:
		q := merge(fetchable)
		b.logger.Debug("executing batch",
			"cycle", c.id,
			"requests", len(c.requests),
			"start", q.Range.Start,
			"end", q.Range.End,
		)
		events, err = b.fetch(q)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		b.logger.Debug("discarding result of abandoned batch", "cycle", c.id, "error", err)
		return
	}
	c.done = true

	elapsed := time.Since(start)
	b.observer.ObserveCycle(len(c.requests), elapsed, err)

	for _, p := range c.requests {
		switch {
		case err != nil:
			p.resolve(Result{Err: err})
		case !p.valid:
			p.resolve(Result{Err: ErrInvalidRange})
		case p.rejected != nil:
			p.resolve(Result{Err: p.rejected})
		default:
			p.resolve(Result{Events: selectEvents(events, p.rng, p.req.Filters)})
		}
	}

	if err != nil {
		b.logger.Warn("batch failed",
			"cycle", c.id,
			"requests", len(c.requests),
			"error", err,
		)
		return
	}
	b.logger.Debug("batch complete",
		"cycle", c.id,
		"requests", len(c.requests),
		"events", len(events),
		"duration", elapsed,
	)
}

func (b *Batcher) checkSources(sources []string) error {
	sc, ok := b.upstream.(SourceChecker)
	if !ok || len(sources) == 0 {
		return nil
	}
	return sc.CheckSources(sources)
}

// fetch issues the single upstream call for a cycle.
func (b *Batcher) fetch(q mergedQuery) ([]model.Event, error) {
	if !b.cfg.ShareInFlight {
		return b.upstream.QueryRange(b.ctx, q.Range.Start, q.Range.End, q.Filters)
	}

	v, err, shared := b.group.Do(q.key(), func() (any, error) {
		return b.upstream.QueryRange(b.ctx, q.Range.Start, q.Range.End, q.Filters)
	})
	if shared {
		b.logger.Debug("joined in-flight upstream query", "key", q.key())
	}
	if err != nil {
		return nil, err
	}
	events, _ := v.([]model.Event)
	return events, nil
}
