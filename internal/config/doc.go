// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} and ${VAR:-fallback} interpolation, and
// unknown keys are rejected. A single file configures the range-query
// sources, the batcher, the polling surfaces, the HTTP server and the
// optional scheduled ingest.
package config
