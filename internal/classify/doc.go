// Package classify places calendar events into NOW and NEXT sets relative to
// a sampled instant.
//
// Rules:
//   - NOW: 0 <= now - instant < window (half-open, opens at the event)
//   - NEXT: every event at the smallest instant strictly after now
//   - Events without a resolvable instant are never NOW or NEXT
//   - Display priority: NOW > NEXT > FUTURE > PAST > Unscheduled
//
// Classify is pure. Callers sample their own clock and call it as often as
// they like; identical inputs always give identical sets.
package classify
