package stream

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"wolfpack-sync/domain"
)

// Connection states. Closed is reachable from any state; the supervisor
// loop in Run retries with exponential backoff until the context ends.
const (
	StateConnecting int32 = iota
	StateOpen
	StateClosed
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second

	writeTimeout = 10 * time.Second
	deltaBuffer  = 64
)

// ErrNotOpen is returned by Send when the connection is not open.
var ErrNotOpen = errors.New("stream: connection not open")

// Config identifies one live connection. A client is keyed by
// (UserID, ProjectID); changing either key means closing the client and
// opening a new one, never reconfiguring in place.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://host/ws.
	URL       string
	UserID    string
	ProjectID string

	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
	Logger     *log.Logger
}

// Client maintains one supervised websocket connection and emits the
// ordered delta stream received on it.
type Client struct {
	cfg    Config
	log    *log.Logger
	dialer *websocket.Dialer

	state  atomic.Int32
	deltas chan domain.Delta

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	// onOpen fires after every successful dial, including reconnects.
	onOpen func()
}

// New creates a stream client. Run must be called to start the connection.
func New(cfg Config, onOpen func()) *Client {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c := &Client{
		cfg:    cfg,
		log:    logger,
		dialer: dialer,
		deltas: make(chan domain.Delta, deltaBuffer),
		onOpen: onOpen,
	}
	c.state.Store(StateConnecting)
	return c
}

// Deltas returns the channel of inbound delta messages, in arrival order.
// The channel is closed when the client stops for good.
func (c *Client) Deltas() <-chan domain.Delta { return c.deltas }

// State returns the current connection state.
func (c *Client) State() int32 { return c.state.Load() }

// endpoint builds the connection URL with the identity query parameters.
func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("user_id", c.cfg.UserID)
	if c.cfg.ProjectID != "" {
		q.Set("project_id", c.cfg.ProjectID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run dials and reads until ctx is cancelled or Close is called. Transport
// drops are retried with exponential backoff; every successful dial resets
// the backoff and fires the onOpen hook so the owner can reload its
// snapshot to cover deltas missed while disconnected.
func (c *Client) Run(ctx context.Context) {
	defer func() {
		c.state.Store(StateClosed)
		close(c.deltas)
	}()

	endpoint, err := c.endpoint()
	if err != nil {
		c.log.WithError(err).Error("stream: invalid endpoint")
		return
	}

	backoff := c.cfg.MinBackoff
	for {
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		c.state.Store(StateConnecting)
		conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return
			}
			c.log.WithError(err).WithField("backoff", backoff.String()).Warn("stream: dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		c.state.Store(StateOpen)
		backoff = c.cfg.MinBackoff
		c.log.WithFields(log.Fields{
			"user":    c.cfg.UserID,
			"project": c.cfg.ProjectID,
		}).Info("stream: connected")
		if c.onOpen != nil {
			c.onOpen()
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.state.Store(StateClosed)
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		c.log.Warn("stream: connection lost, reconnecting")
	}
}

// readLoop consumes frames until the connection drops. A frame that fails
// to parse is logged and dropped; the connection is unaffected.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		var d domain.Delta
		if err := sonic.Unmarshal(data, &d); err != nil || d.Type == "" {
			c.log.WithError(err).Warn("stream: dropping malformed frame")
			continue
		}
		select {
		case c.deltas <- d:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// Send writes one JSON message. When the connection is not open the message
// is dropped with a logged error and ErrNotOpen is returned.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.state.Load() != StateOpen {
		c.log.Error("stream: send while not open, message dropped")
		return ErrNotOpen
	}
	payload, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close tears the connection down permanently. It is safe to call from any
// state and more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}
	c.state.Store(StateClosed)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
