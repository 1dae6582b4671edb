// Package router implements the source router.
//
// The router:
//   - Maps the source option of a range query to named backends
//   - Fans a query out to the selected backends concurrently
//   - Stamps each event with the backend it came from
//   - Fails the whole query when any selected backend fails
package router
