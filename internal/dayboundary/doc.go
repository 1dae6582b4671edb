// Package dayboundary separates "past" styling from "still NOW" styling and
// groups instants by the viewer's calendar day.
//
// The viewer's location only decides which calendar day an instant falls
// on. Whether an event is past for display depends on the instants and the
// NOW window alone, so switching a display timezone never changes it.
package dayboundary
