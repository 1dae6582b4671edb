// Package batcher coalesces near-simultaneous range queries into one
// upstream call per debounce window.
//
// Cycle: Idle → Accumulating (timer armed) → Executing (fetch in flight) → Idle.
//
// When the timer fires, the pending list is taken over in one step and a new
// cycle may start accumulating at once, so cycles can overlap. Each cycle:
//   - merges every request into one superset query (union range, union filters)
//   - issues exactly one upstream QueryRange call
//   - re-applies each request's own range and filters to the shared result
//
// Failures are cycle-wide. An upstream error reaches every request in the
// cycle unchanged, and a cycle with no valid range fails every request with
// ErrNoValidRange. No request ever resolves to an empty success in place of
// an error.
//
// An upstream that implements SourceChecker is asked about each request's
// source set before merging. A rejected request fails with the upstream's
// error and is left out of the merged query; when no request survives, no
// fetch is made.
//
// Abandon rejects everything queued and every cycle that has not yet
// distributed its result; the upstream call itself is left to finish and
// its result is dropped.
package batcher
