package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/econcal/internal/surface"
)

// Observer records hub activity.
type Observer interface {
	SetSubscribers(n int)
	ObserveDropped()
}

type nopObserver struct{}

func (nopObserver) SetSubscribers(int) {}
func (nopObserver) ObserveDropped()    {}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithObserver sets the hub observer.
func WithObserver(o Observer) HubOption {
	return func(h *Hub) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithCheckOrigin overrides the upgrade origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// subscriber is one websocket connection.
type subscriber struct {
	conn     *websocket.Conn
	remote   string
	surfaces map[string]bool // nil means all
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	dropped  int // guarded by Hub.mu
}

func (s *subscriber) wants(name string) bool {
	return s.surfaces == nil || s.surfaces[strings.ToLower(name)]
}

// offer queues data without blocking. It reports false when the outbox is
// full.
func (s *subscriber) offer(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		s.dropped++
		return false
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub fans surface snapshots out to websocket subscribers.
type Hub struct {
	cfg      HubConfig
	logger   *slog.Logger
	observer Observer
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	latest map[string][]byte
	seq    int64
	closed bool
}

// NewHub creates a new Hub.
func NewHub(cfg HubConfig, logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultHubConfig()
	if cfg.Outbox < 1 {
		cfg.Outbox = def.Outbox
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	h := &Hub{
		cfg:      cfg,
		logger:   logger.With("component", "stream"),
		observer: nopObserver{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		subs:   make(map[*subscriber]struct{}),
		latest: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish encodes snap and offers it to every interested subscriber.
func (h *Hub) Publish(snap surface.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.seq++
	data, err := json.Marshal(Message{Type: TypeSnapshot, Seq: h.seq, Snapshot: &snap})
	if err != nil {
		h.logger.Error("encode snapshot", "surface", snap.Surface, "error", err)
		return
	}
	h.latest[strings.ToLower(snap.Surface)] = data

	for sub := range h.subs {
		if !sub.wants(snap.Surface) {
			continue
		}
		if !sub.offer(data) {
			h.observer.ObserveDropped()
			if sub.dropped == 1 || sub.dropped%100 == 0 {
				h.logger.Warn("subscriber outbox full, dropping",
					"remote", sub.remote,
					"dropped", sub.dropped,
				)
			}
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams snapshots until either side
// closes. The optional "surface" query parameter is a comma-separated list
// of surface names.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		conn:     conn,
		remote:   conn.RemoteAddr().String(),
		surfaces: parseSurfaces(r.URL.Query().Get("surface")),
		send:     make(chan []byte, h.cfg.Outbox),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	names := make([]string, 0, len(h.latest))
	for name := range h.latest {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if sub.wants(name) {
			sub.offer(h.latest[name])
		}
	}
	h.mu.Unlock()

	h.observer.SetSubscribers(n)
	h.logger.Debug("subscriber connected", "remote", sub.remote, "subscribers", n)

	go h.writeLoop(sub)
	h.readLoop(sub)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// readLoop discards client frames and keeps the read deadline moving on
// pongs. It returns when the connection fails.
func (h *Hub) readLoop(sub *subscriber) {
	defer sub.close()

	sub.conn.SetReadLimit(4096)
	sub.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the connection's only data writer.
func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		h.remove(sub)
	}()

	for {
		select {
		case <-sub.done:
			sub.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			return
		case data := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("write failed", "error", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	sub.close()
	sub.conn.Close()

	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	n := len(h.subs)
	dropped := sub.dropped
	h.mu.Unlock()

	if ok {
		h.observer.SetSubscribers(n)
		h.logger.Debug("subscriber disconnected", "subscribers", n, "dropped", dropped)
	}
}

func parseSurfaces(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			set[strings.ToLower(name)] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
