// Package web serves the HTTP surface: health, surface snapshots, ad-hoc
// classification, range queries through the batcher, countdowns, the
// snapshot stream and metrics.
package web
