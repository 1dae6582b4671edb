// Package adapter maps heterogeneous upstream event records onto
// model.Event and back to a single canonical wire shape.
//
// Upstream feeds disagree on field casing ("Name" vs "name") and naming
// ("title", "event", "strength"). Everything downstream of this package sees
// only model.Event.
package adapter
