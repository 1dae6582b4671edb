// Package instant resolves event time values into absolute instants.
//
// An instant is an int64 count of milliseconds since the Unix epoch (UTC).
// Accepted inputs:
//   - time.Time and *time.Time
//   - ISO-8601 strings (RFC 3339, or offset-less forms interpreted as UTC)
//   - epoch-millisecond numbers (any Go integer or float kind, json.Number)
//   - Pair, a date with an optional clock that overrides the date's clock
//
// Resolve never converts between zones for display and never returns an
// error: an absent or unparseable value reports ok == false, and callers
// must exclude it rather than treat it as epoch zero.
package instant
