package api

import "time"

// DefaultPaginationTimeout bounds GetEventsInRange when the caller's context
// has no deadline.
const DefaultPaginationTimeout = 2 * time.Minute

// EventsResponse from GET /events. Records are kept raw for the adapter.
type EventsResponse struct {
	Events []map[string]any `json:"events"`
	Cursor string           `json:"cursor"`
}

// GetEventsOptions configures a GetEvents request.
type GetEventsOptions struct {
	FromMs     int64
	ToMs       int64
	Impacts    []string
	Currencies []string
	Sources    []string
	Limit      int
	Cursor     string
}
