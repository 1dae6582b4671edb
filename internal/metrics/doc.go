// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Batch cycles by outcome, requests per cycle and upstream latency
//   - Abandoned batch requests
//   - Per-surface NOW/NEXT counts and refresh failures
//   - Live stream subscribers and dropped messages
//   - Scheduled ingest runs and event counts
package metrics
