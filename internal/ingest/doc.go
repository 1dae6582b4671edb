// Package ingest copies events from upstream sources into a local sink on a
// cron schedule.
//
// Each run queries the configured sources over [now-lookback, now+lookahead],
// drops duplicate (source, id) pairs keeping the last occurrence, and hands
// the rest to a Sink. The Postgres store and the S3 document store both have
// Sink adapters here, so a deployment can serve later reads from either.
package ingest
