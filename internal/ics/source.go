package ics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/econcal/internal/model"
)

// Source serves the events of a set of feeds as one range-query backend.
type Source struct {
	name     string
	feeds    []Feed
	fetcher  *Fetcher
	currency string
	logger   *slog.Logger
}

// NewSource creates a Source. currency is stamped on events whose feed
// carries none.
func NewSource(name string, feeds []Feed, fetcher *Fetcher, currency string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		name:     name,
		feeds:    feeds,
		fetcher:  fetcher,
		currency: currency,
		logger:   logger.With("component", "ics", "source", name),
	}
}

// QueryRange fetches every feed, expands occurrences inside [start, end]
// and returns those passing f, ordered by instant. Any feed that cannot be
// fetched or parsed fails the whole query.
func (s *Source) QueryRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error) {
	bodies := make([][]byte, len(s.feeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, feed := range s.feeds {
		g.Go(func() error {
			body, err := s.fetcher.Fetch(gctx, feed)
			if err != nil {
				return err
			}
			bodies[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	from, to := time.UnixMilli(start).UTC(), time.UnixMilli(end).UTC()
	var out []model.Event
	for i, body := range bodies {
		feed := s.feeds[i]
		vs, skipped, err := parse(feed.ID, body)
		if err != nil {
			return nil, err
		}
		if skipped > 0 {
			s.logger.Warn("skipped unreadable vevents", "feed", feed.ID, "count", skipped)
		}

		events, truncated := expand(vs, from, to, DefaultMaxOccurrences)
		if len(truncated) > 0 {
			s.logger.Warn("recurrence expansion truncated", "feed", feed.ID, "uids", truncated)
		}
		for _, e := range events {
			e.Source = s.name
			if e.Currency == "" {
				e.Currency = s.currency
			}
			if f.Match(e) {
				out = append(out, e)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ai, _ := out[i].Instant()
		aj, _ := out[j].Instant()
		return ai < aj
	})
	return out, nil
}
