// Package model defines the canonical calendar types shared across econcal.
//
// Conventions:
//   - Instants: int64 milliseconds since Unix epoch (see package instant)
//   - Event.Time keeps the upstream representation; it is resolved on demand
//   - Impact: normalized to a small closed set (see ParseImpact)
//   - IDs: upstream string IDs, or name-based UUIDs synthesized by EventKey
package model
