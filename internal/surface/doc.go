// Package surface implements the per-surface polling drivers.
//
// Each Driver owns its clock, refreshes its dataset through the batcher on
// one interval, and re-runs classification on another, publishing a
// Snapshot every tick. Drivers share nothing; two surfaces that sample the
// same instant over the same events produce the same NOW/NEXT sets. The
// surface timezone only affects display fields.
package surface
