package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single subscription to a hub.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	// Messages delivers decoded frames in arrival order.
	Messages() <-chan Message

	// Errors delivers at most one error, after which the connection is dead.
	Errors() <-chan error

	IsConnected() bool
}

type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	messages chan Message
	errors   chan error
	done     chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	connected atomic.Bool
}

// NewClient returns an unconnected client for cfg.URL.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &client{
		cfg:      cfg,
		logger:   logger.With("component", "stream_client"),
		messages: make(chan Message, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func dialURL(raw string, surfaces []string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	if len(surfaces) > 0 {
		q := u.Query()
		q.Set("surface", strings.Join(surfaces, ","))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *client) header() (http.Header, error) {
	h := http.Header{}
	if c.cfg.Credentials == nil {
		return h, nil
	}
	signed, err := c.cfg.Credentials.SignWebSocket()
	if err != nil {
		return nil, fmt.Errorf("sign handshake: %w", err)
	}
	for k, v := range signed {
		h.Set(k, v)
	}
	return h, nil
}

// Connect dials the hub and starts reading. The connection is considered
// stale when neither a frame nor a ping arrives within PingTimeout.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrAlreadyClosed
	}

	target, err := dialURL(c.cfg.URL, c.cfg.Surfaces)
	if err != nil {
		return err
	}
	header, err := c.header()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.extendDeadline(conn)
	conn.SetPingHandler(func(data string) error {
		c.extendDeadline(conn)
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	c.connected.Store(true)
	go c.readLoop(conn)

	c.logger.Debug("connected", "url", target)
	return nil
}

func (c *client) extendDeadline(conn *websocket.Conn) {
	if c.cfg.PingTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
	}
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.connected.Store(false)
	close(c.done)
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (c *client) Messages() <-chan Message { return c.messages }
func (c *client) Errors() <-chan error     { return c.errors }
func (c *client) IsConnected() bool        { return c.connected.Load() }

func (c *client) fail(err error) {
	select {
	case <-c.done:
	case c.errors <- err:
	default:
	}
}

func (c *client) readLoop(conn *websocket.Conn) {
	defer c.connected.Store(false)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.logger.Warn("no frame or ping received, connection stale", "timeout", c.cfg.PingTimeout)
				err = fmt.Errorf("%w: %v", ErrStaleConnection, err)
			}
			c.fail(err)
			return
		}
		c.extendDeadline(conn)

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("undecodable frame", "error", err, "bytes", len(data))
			continue
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping frame", "seq", msg.Seq)
		}
	}
}
