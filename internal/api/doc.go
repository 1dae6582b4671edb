// Package api provides the REST client for an upstream economic calendar
// service.
//
// Endpoint:
//   - GET /events?from_ms=&to_ms=&impact=&currency=&source=&cursor=&limit=
//
// Responses carry raw event records plus a pagination cursor. Records are
// normalized through package adapter, so field casing may vary by upstream.
// The client implements batcher.RangeQuerier via QueryRange.
package api
