// Package backend builds the configured range-query backends and ingest
// sinks, and registers the backends with a source router.
package backend
