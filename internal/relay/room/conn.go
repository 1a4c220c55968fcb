package room

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
)

const writeTimeout = 10 * time.Second

// Conn wraps a member's WebSocket connection. The mutex serializes
// writes; concurrent writes on a single WebSocket corrupt frames.
// SendFn, when set, overrides the socket write for testing.
type Conn struct {
	ws     *websocket.Conn
	SendFn func(data []byte) error

	mu     sync.Mutex
	closed atomic.Bool
}

// NewConn wraps a WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// NewTestConn creates a Conn that delivers frames to fn instead of a
// real socket.
func NewTestConn(fn func(data []byte) error) *Conn {
	return &Conn{SendFn: fn}
}

// Send encodes an envelope and writes it as a single text frame.
func (c *Conn) Send(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw writes pre-encoded frame bytes.
func (c *Conn) SendRaw(data []byte) error {
	if c.closed.Load() {
		return fmt.Errorf("connection closed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendFn != nil {
		return c.SendFn(data)
	}
	if c.ws == nil {
		return fmt.Errorf("no transport")
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// IsOpen reports whether the connection has not been marked closed.
func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// MarkClosed flags the connection so future sends fail fast. The
// underlying socket close is owned by the read loop.
func (c *Conn) MarkClosed() {
	c.closed.Store(true)
}
