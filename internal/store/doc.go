// Package store persists calendar events in PostgreSQL and serves range
// queries over them.
//
// Rows are keyed by (source, event_id). Event times are stored as resolved
// epoch milliseconds; events without a resolvable time are not stored.
package store
