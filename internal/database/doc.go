// Package database provides connection pool management for the PostgreSQL
// event store.
//
// The pool backs both the postgres range-query source and the ingest sink.
package database
