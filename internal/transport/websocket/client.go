// Package websocket carries chunk requests and responses over a WebSocket
// connection, for setups where the recording files live on another host.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/inspector/internal/transport"
	"github.com/OCAP2/inspector/pkg/streaming"
)

const (
	sendChSize        = 256
	maxReconnect      = 10
	maxBackoff        = 30 * time.Second
	writeWait         = 10 * time.Second
	defaultBackoff    = time.Second
	connectionLostMsg = "connection lost"
)

// Config configures a Client.
type Config struct {
	URL    string
	Secret string
	// InitialBackoff is the first reconnect delay; it doubles per attempt.
	InitialBackoff time.Duration
	Logger         *slog.Logger
}

// link is one physical connection. lost is closed once the connection is
// known to be broken.
type link struct {
	conn     *ws.Conn
	lost     chan struct{}
	lostOnce sync.Once
}

func (l *link) markLost() bool {
	first := false
	l.lostOnce.Do(func() {
		close(l.lost)
		first = true
	})
	return first
}

// Client is a transport.Transport over a WebSocket connection with a single
// write goroutine and automatic reconnect.
type Client struct {
	cfg    Config
	logger *slog.Logger

	sendCh chan []byte
	done   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	cur      *link
	closed   bool
	failed   error
	inflight map[uint64]struct{}
	handler  transport.ResponseHandler
}

var _ transport.Transport = (*Client)(nil)

// Dial connects to the chunk server and starts the read/write loops.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger.With("component", "ws-transport"),
		sendCh:   make(chan []byte, sendChSize),
		done:     make(chan struct{}),
		inflight: map[uint64]struct{}{},
	}

	conn, err := c.dialOnce(ctx)
	if err != nil {
		return nil, err
	}
	c.start(conn)
	return c, nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *Client) dialOnce(ctx context.Context) (*ws.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.cfg.Secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// start installs conn as the current link and runs its loops. It reports
// false, closing conn, if the client was closed meanwhile.
func (c *Client) start(conn *ws.Conn) bool {
	l := &link{conn: conn, lost: make(chan struct{})}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.cur = l
	c.wg.Add(2)
	c.mu.Unlock()

	go c.writeLoop(l)
	go c.readLoop(l)
	return true
}

// Send queues req for the write loop. It blocks only while the send queue is
// full.
func (c *Client) Send(ctx context.Context, req streaming.ChunkRequest) error {
	data, err := streaming.MarshalEnvelope(streaming.TypeChunkRequest, req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	if c.failed != nil {
		c.mu.Unlock()
		return c.failed
	}
	c.inflight[req.RequestID] = struct{}{}
	c.mu.Unlock()

	select {
	case c.sendCh <- data:
		return nil
	case <-ctx.Done():
		c.forget(req.RequestID)
		return ctx.Err()
	case <-c.done:
		c.forget(req.RequestID)
		return transport.ErrClosed
	}
}

func (c *Client) OnResponse(h transport.ResponseHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

func (c *Client) deliver(resp streaming.ChunkResponse) {
	c.mu.Lock()
	_, known := c.inflight[resp.RequestID]
	delete(c.inflight, resp.RequestID)
	h := c.handler
	c.mu.Unlock()

	if !known {
		c.logger.Debug("Response for unknown request", "requestId", resp.RequestID)
	}
	if h != nil {
		h(resp)
	}
}

// writeLoop drains sendCh and writes messages to l. It returns on error,
// shutdown or when l is replaced.
func (c *Client) writeLoop(l *link) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-l.lost:
			return
		case data := <-c.sendCh:
			if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				c.connLost(l)
				return
			}
			if err := l.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				c.connLost(l)
				return
			}
		}
	}
}

// readLoop routes chunk responses to the handler.
func (c *Client) readLoop(l *link) {
	defer c.wg.Done()
	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			c.connLost(l)
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Malformed message received", "raw", string(message))
			continue
		}

		switch env.Type {
		case streaming.TypeChunkResponse:
			var resp streaming.ChunkResponse
			if err := json.Unmarshal(env.Payload, &resp); err != nil {
				c.logger.Warn("Malformed chunk response", "error", err)
				continue
			}
			c.deliver(resp)
		case streaming.TypeError:
			var em streaming.ErrorMessage
			_ = json.Unmarshal(env.Payload, &em)
			c.logger.Warn("Server rejected message", "for", em.For, "message", em.Message)
		default:
			c.logger.Debug("Unexpected message type", "type", env.Type)
		}
	}
}

// connLost tears down l, fails every in-flight request and starts a
// reconnect. Only the first caller for a given link acts.
func (c *Client) connLost(l *link) {
	if !l.markLost() {
		return
	}
	_ = l.conn.Close()

	c.mu.Lock()
	if c.cur == l {
		c.cur = nil
	}
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.failInflight(connectionLostMsg)

	c.wg.Add(1)
	go c.reconnect()
}

func (c *Client) failInflight(msg string) {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.inflight))
	for id := range c.inflight {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.deliver(streaming.ChunkResponse{RequestID: id, Error: msg})
	}
}

// reconnect re-establishes the connection with exponential backoff and
// restarts the read/write loops.
func (c *Client) reconnect() {
	defer c.wg.Done()

	backoff := c.cfg.InitialBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		conn, err := c.dialOnce(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if c.start(conn) {
			c.logger.Info("WebSocket reconnected", "attempt", attempt)
		}
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
	failed := fmt.Errorf("websocket reconnect failed after %d attempts", maxReconnect)
	c.mu.Lock()
	c.failed = failed
	c.mu.Unlock()
	c.failInflight(failed.Error())
}

// Connected reports whether a live connection is currently held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

// Close sends a WebSocket close frame and shuts down all goroutines.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	l := c.cur
	c.cur = nil
	c.mu.Unlock()

	var err error
	if l != nil {
		l.markLost()
		_ = l.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		if cerr := l.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	c.wg.Wait()
	return err
}
