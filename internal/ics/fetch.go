package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Feed is one iCalendar subscription.
type Feed struct {
	ID  string
	URL string
}

// cacheEntry holds the last good body and its validators.
type cacheEntry struct {
	body         []byte
	etag         string
	lastModified string
	fetchedAt    time.Time
}

// Fetcher fetches feeds, honoring ETag and Last-Modified. Bodies younger
// than ttl are served without a request.
type Fetcher struct {
	client *http.Client
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher creates a Fetcher. A nil client uses one with timeout.
func NewFetcher(client *http.Client, timeout, ttl time.Duration, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: client,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
}

// Fetch returns the feed body. Network failures and non-OK statuses fall
// back to the cached body when one exists.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]byte, error) {
	if feed.URL == "" {
		return nil, errors.New("ics: feed URL is empty")
	}

	f.mu.Lock()
	cached, hasCache := f.cache[feed.URL]
	f.mu.Unlock()

	if hasCache && f.ttl > 0 && f.now().Sub(cached.fetchedAt) < f.ttl {
		return cached.body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if hasCache {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if hasCache {
			f.logger.Warn("ics fetch failed, using cached body",
				"feed", feed.ID,
				"url", redactURL(feed.URL),
				"error", err,
			)
			return cached.body, nil
		}
		return nil, fmt.Errorf("fetch feed %s: %w", feed.ID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read feed %s: %w", feed.ID, err)
		}
		f.store(feed.URL, cacheEntry{
			body:         body,
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
		})
		f.logger.Debug("ics fetched",
			"feed", feed.ID,
			"url", redactURL(feed.URL),
			"bytes", len(body),
		)
		return body, nil

	case http.StatusNotModified:
		if !hasCache {
			return nil, fmt.Errorf("feed %s: 304 Not Modified without a cached body", feed.ID)
		}
		f.store(feed.URL, cached)
		return cached.body, nil

	default:
		if hasCache {
			f.logger.Warn("ics fetch non-OK, using cached body",
				"feed", feed.ID,
				"url", redactURL(feed.URL),
				"status", resp.StatusCode,
			)
			return cached.body, nil
		}
		return nil, fmt.Errorf("feed %s: %s", feed.ID, resp.Status)
	}
}

func (f *Fetcher) store(u string, e cacheEntry) {
	e.fetchedAt = f.now()
	f.mu.Lock()
	f.cache[u] = e
	f.mu.Unlock()
}

// redactURL keeps only the scheme and host; feed paths often carry tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://redacted"
	}
	return u.Scheme + "://" + u.Host + "/..."
}
