package hub

import (
	"sync"
	"time"

	"github.com/chatbridge/satori/src/types"
)

// State is a connection's position in the identify handshake.
type State int

// Connection states.
const (
	StateUnauthenticated State = iota
	StateAuthorized
	StateClosed
)

// Client wraps a WebSocket connection and manages outbound message flow.
type Client struct {
	ID          string
	conn        types.Conn
	Send        chan types.Envelope
	connectedAt time.Time

	mu     sync.Mutex
	state  State
	closed bool
	done   chan struct{}
}

// NewClient creates a new connection wrapper in the Unauthenticated state.
func NewClient(id string, conn types.Conn) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		Send:        make(chan types.Envelope, 256),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectedAt returns when the transport was established.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// Authorize transitions Unauthenticated to Authorized. It is the single
// mutation point for the handshake: exactly one caller wins, and the timeout
// path observes the result through State.
func (c *Client) Authorize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUnauthenticated {
		return false
	}
	c.state = StateAuthorized
	return true
}

// Enqueue queues an envelope for delivery without blocking. It reports false
// when the connection is closed or its send buffer is full.
func (c *Client) Enqueue(env types.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}

// WritePump writes queued envelopes to the WebSocket. Call in a goroutine.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case env := <-c.Send:
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// shutdown marks the client closed. It reports false if already closed.
func (c *Client) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	c.state = StateClosed
	close(c.done)
	return true
}

// CloseStatus closes the connection with a close code and reason.
func (c *Client) CloseStatus(code int, reason string) {
	if c.shutdown() {
		_ = c.conn.CloseStatus(code, reason)
	}
}

// Close tears the connection down without a close frame. Idempotent.
func (c *Client) Close() {
	if c.shutdown() {
		_ = c.conn.Close()
	}
}
