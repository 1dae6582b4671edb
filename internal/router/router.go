package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/econcal/internal/model"
)

// ErrUnknownSource is returned when none of the requested sources is registered.
var ErrUnknownSource = errors.New("router: unknown source")

// Backend is a named range-query backend.
type Backend interface {
	QueryRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error)
}

// Stats contains runtime statistics.
type Stats struct {
	Queries        int64
	BackendQueries int64
	BackendErrors  int64
	UnknownSources int64
	EventsRouted   int64
}

// Router dispatches range queries to registered backends.
type Router struct {
	logger *slog.Logger

	mu       sync.RWMutex
	backends map[string]Backend // keyed by lowercase name
	names    []string           // registration order, original case

	statsMu sync.Mutex
	stats   Stats
}

// New creates an empty Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:   logger.With("component", "router"),
		backends: make(map[string]Backend),
	}
}

// Register adds a backend under name. Names are case-insensitive.
func (r *Router) Register(name string, b Backend) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return errors.New("router: backend name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[key]; exists {
		return fmt.Errorf("router: backend %q already registered", name)
	}
	r.backends[key] = b
	r.names = append(r.names, name)
	return nil
}

// Names returns registered backend names in registration order.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

type selected struct {
	name    string
	backend Backend
}

// selectBackends resolves f.Sources to backends. An empty set selects all.
// Unknown names are skipped; if nothing is left, ErrUnknownSource.
func (r *Router) selectBackends(sources []string) ([]selected, []string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(sources) == 0 {
		out := make([]selected, 0, len(r.names))
		for _, name := range r.names {
			out = append(out, selected{name: name, backend: r.backends[strings.ToLower(name)]})
		}
		return out, nil, nil
	}

	var (
		out     []selected
		unknown []string
		seen    = make(map[string]bool)
	)
	for _, name := range r.names {
		key := strings.ToLower(name)
		for _, want := range sources {
			if strings.EqualFold(strings.TrimSpace(want), name) && !seen[key] {
				seen[key] = true
				out = append(out, selected{name: name, backend: r.backends[key]})
			}
		}
	}
	for _, want := range sources {
		if _, ok := r.backends[strings.ToLower(strings.TrimSpace(want))]; !ok {
			unknown = append(unknown, want)
		}
	}
	if len(out) == 0 {
		return nil, unknown, fmt.Errorf("%w: %s", ErrUnknownSource, strings.Join(unknown, ","))
	}
	return out, unknown, nil
}

// CheckSources returns the error QueryRange would give for sources without
// querying anything: ErrUnknownSource when none of them is registered.
func (r *Router) CheckSources(sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	_, _, err := r.selectBackends(sources)
	return err
}

// QueryRange queries every selected backend concurrently and merges the
// results ordered by instant. Backends receive f without the source set.
func (r *Router) QueryRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error) {
	r.statsMu.Lock()
	r.stats.Queries++
	r.statsMu.Unlock()

	targets, unknown, err := r.selectBackends(f.Sources)
	if len(unknown) > 0 {
		r.logger.Warn("ignoring unknown sources", "sources", unknown)
		r.statsMu.Lock()
		r.stats.UnknownSources += int64(len(unknown))
		r.statsMu.Unlock()
	}
	if err != nil {
		return nil, err
	}

	inner := f
	inner.Sources = nil

	results := make([][]model.Event, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			events, err := t.backend.QueryRange(gctx, start, end, inner)
			if err != nil {
				return fmt.Errorf("source %s: %w", t.name, err)
			}
			results[i] = stamp(events, t.name)
			return nil
		})
	}
	err = g.Wait()

	r.statsMu.Lock()
	r.stats.BackendQueries += int64(len(targets))
	if err != nil {
		r.stats.BackendErrors++
	}
	r.statsMu.Unlock()

	if err != nil {
		return nil, err
	}

	var merged []model.Event
	for _, events := range results {
		merged = append(merged, events...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		ai, _ := merged[i].Instant()
		aj, _ := merged[j].Instant()
		return ai < aj
	})

	r.statsMu.Lock()
	r.stats.EventsRouted += int64(len(merged))
	r.statsMu.Unlock()

	r.logger.Debug("routed range query",
		"backends", len(targets),
		"events", len(merged),
	)
	return merged, nil
}

// stamp sets Source to the backend name. A differing upstream source is
// kept in Extra["origin"].
func stamp(events []model.Event, name string) []model.Event {
	for i := range events {
		e := &events[i]
		if e.Source != "" && !strings.EqualFold(e.Source, name) {
			extra := make(map[string]any, len(e.Extra)+1)
			for k, v := range e.Extra {
				extra[k] = v
			}
			extra["origin"] = e.Source
			e.Extra = extra
		}
		e.Source = name
	}
	return events
}
