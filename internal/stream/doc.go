// Package stream pushes surface snapshots to websocket subscribers.
//
// The Hub is a surface.Publisher: every published snapshot is encoded once
// and offered to each subscriber's bounded outbox. A subscriber that falls
// behind loses messages rather than slowing the drivers. New subscribers
// receive the latest snapshot of every surface they asked for.
//
// Client and Watch are the receiving side, used by the calwatch binary.
package stream
