package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rickgao/econcal/internal/adapter"
	"github.com/rickgao/econcal/internal/model"
)

// GetEvents fetches a page of events.
func (c *Client) GetEvents(ctx context.Context, opts GetEventsOptions) (*EventsResponse, error) {
	query := url.Values{}

	query.Set("from_ms", strconv.FormatInt(opts.FromMs, 10))
	query.Set("to_ms", strconv.FormatInt(opts.ToMs, 10))
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if len(opts.Impacts) > 0 {
		query.Set("impact", strings.Join(opts.Impacts, ","))
	}
	if len(opts.Currencies) > 0 {
		query.Set("currency", strings.Join(opts.Currencies, ","))
	}
	if len(opts.Sources) > 0 {
		query.Set("source", strings.Join(opts.Sources, ","))
	}

	var resp EventsResponse
	if err := c.get(ctx, "/events", query, &resp); err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	return &resp, nil
}

// GetEventsInRange fetches every page of events in [start, end] matching f.
// Uses DefaultPaginationTimeout if the context has no deadline.
func (c *Client) GetEventsInRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultPaginationTimeout)
		defer cancel()
	}

	opts := GetEventsOptions{
		FromMs:     start,
		ToMs:       end,
		Currencies: f.Currencies,
		Sources:    f.Sources,
		Limit:      c.pageLimit,
	}
	for _, imp := range f.Impacts {
		opts.Impacts = append(opts.Impacts, string(imp))
	}

	var raws []map[string]any
	pages := 0
	for {
		resp, err := c.GetEvents(ctx, opts)
		if err != nil {
			return nil, err
		}
		pages++
		raws = append(raws, resp.Events...)

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	events := adapter.NormalizeAll(raws)
	if c.source != "" {
		for i := range events {
			if events[i].Source == "" {
				events[i].Source = c.source
			}
		}
	}

	c.logger.Debug("fetched events",
		"start", start,
		"end", end,
		"pages", pages,
		"events", len(events),
	)
	return events, nil
}

// QueryRange implements batcher.RangeQuerier.
func (c *Client) QueryRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error) {
	return c.GetEventsInRange(ctx, start, end, f)
}
