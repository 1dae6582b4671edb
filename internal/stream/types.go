package stream

import (
	"errors"
	"time"

	"github.com/rickgao/econcal/internal/auth"
	"github.com/rickgao/econcal/internal/surface"
)

var (
	ErrStaleConnection = errors.New("stream: connection stale")
	ErrAlreadyClosed   = errors.New("stream: client closed")
)

// TypeSnapshot is the only message type the hub sends.
const TypeSnapshot = "snapshot"

// Message is one frame on the stream.
type Message struct {
	Type     string            `json:"type"`
	Seq      int64             `json:"seq"` // Hub-wide, gaps mean dropped frames
	Snapshot *surface.Snapshot `json:"snapshot,omitempty"`
}

// HubConfig configures a Hub.
type HubConfig struct {
	Outbox       int           // Per-subscriber queue length (default: 32)
	WriteTimeout time.Duration // Write deadline per frame (default: 5s)
	PingInterval time.Duration // Server ping cadence (default: 30s)
	PongTimeout  time.Duration // Read deadline extended by each pong (default: 60s)
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Outbox:       32,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

// ClientConfig configures a stream client.
type ClientConfig struct {
	URL          string            // ws://host:port/ws
	Surfaces     []string          // Surfaces to receive; empty means all
	Credentials  *auth.Credentials // Signs the upgrade request (nil = no auth)
	PingTimeout  time.Duration     // Max silence (no frame, no ping) before the connection is stale
	WriteTimeout time.Duration     // Write deadline for control frames
	BufferSize   int               // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   64,
	}
}

// WatchConfig configures Watch reconnection.
type WatchConfig struct {
	ReconnectBaseWait time.Duration // First retry delay (default: 1s)
	ReconnectMaxWait  time.Duration // Backoff ceiling (default: 30s)
}

// DefaultWatchConfig returns sensible defaults.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  30 * time.Second,
	}
}
