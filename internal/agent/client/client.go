// Package client implements the agent side of the CodeHive protocol:
// the relay connection state machine with heartbeating, automatic
// rejoin after reconnects, and a bounded offline change queue.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/CodeHiveAPP/codehive/internal/hive"
	"github.com/CodeHiveAPP/codehive/internal/protocol"
)

const (
	// resetThreshold is the connection duration after which the
	// reconnect budget and backoff interval reset.
	resetThreshold = 30 * time.Second

	// maxReconnectAttempts bounds consecutive failed reconnects before
	// the client gives up.
	maxReconnectAttempts = 10

	// requestTimeout bounds create/join round trips; queryTimeout
	// bounds the lighter status/timeline/list/lock round trips.
	requestTimeout = 10 * time.Second
	queryTimeout   = 5 * time.Second

	writeTimeout = 10 * time.Second
)

var errNotConnected = errors.New("not connected")

// listener is a one-shot frame waiter. The predicate must not call
// back into the client; it runs under the client mutex.
type listener struct {
	pred func(h protocol.Header, data []byte) bool
	ch   chan []byte
}

// Client is one agent's connection to the relay. All methods are safe
// for concurrent use.
type Client struct {
	url      string
	deviceID string
	name     string

	// DialFn opens the transport. Swapped in tests.
	DialFn func(ctx context.Context) (Transport, error)

	// OnFrame observes every inbound frame after waiter dispatch.
	OnFrame func(h protocol.Header, data []byte)

	// OnGiveUp is called when the reconnect budget is exhausted.
	OnGiveUp func()

	mu              sync.Mutex
	tr              Transport
	currentRoom     string
	currentPassword string
	currentBranch   string
	currentStatus   string
	queue           []protocol.FileChange
	listeners       []*listener
	closed          bool
}

// New creates a client for the given relay URL. A fresh device id is
// generated per client, not per machine.
func New(url, name string) *Client {
	c := &Client{
		url:           url,
		deviceID:      hive.GenerateDeviceID(),
		name:          name,
		currentStatus: protocol.StatusActive,
	}
	c.DialFn = func(ctx context.Context) (Transport, error) {
		return Dial(ctx, url)
	}
	return c
}

func (c *Client) DeviceID() string { return c.deviceID }

func (c *Client) Name() string { return c.name }

// CurrentRoom returns the joined room code, or "".
func (c *Client) CurrentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRoom
}

// SetBranch records the git branch announced on heartbeats and rejoin.
func (c *Client) SetBranch(branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentBranch = branch
}

// SetStatus sets the presence status announced on heartbeats.
func (c *Client) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentStatus = status
}

// newReconnectBackoff creates the reconnect schedule: 1s doubling up
// to 30s, no jitter.
func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Run connects and keeps the client connected until ctx is cancelled
// or Disconnect is called, reconnecting with exponential backoff. A
// connection that survives long enough resets the attempt budget;
// after maxReconnectAttempts consecutive failures the client gives up.
func (c *Client) Run(ctx context.Context) error {
	bo := newReconnectBackoff()
	attempts := 0
	for {
		start := time.Now()
		err := c.Connect(ctx)
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}

		if time.Since(start) >= resetThreshold {
			attempts = 0
			bo.Reset()
		}
		attempts++
		if attempts > maxReconnectAttempts {
			slog.Error("relay unreachable, giving up", "attempts", maxReconnectAttempts, "error", err)
			if c.OnGiveUp != nil {
				c.OnGiveUp()
			}
			return err
		}

		interval := bo.NextBackOff()
		slog.Warn("disconnected from relay, reconnecting...", "error", err, "backoff", interval, "attempt", attempts)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// Connect dials the relay and runs the read pump until the connection
// drops. If a room is remembered from before the disconnect, the
// client rejoins it with the stored credentials.
func (c *Client) Connect(ctx context.Context) error {
	tr, err := c.DialFn(ctx)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.mu.Lock()
	c.tr = tr
	rejoin := c.currentRoom != ""
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.tr = nil
		c.mu.Unlock()
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.Info("connected to relay", "url", c.url)
	go c.heartbeatLoop(connCtx)
	if rejoin {
		go c.rejoin()
	}

	for {
		data, err := tr.Read(connCtx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		h, derr := protocol.Decode(data)
		if derr != nil {
			slog.Debug("dropping malformed frame", "error", derr)
			continue
		}
		c.dispatch(h, data)
	}
}

// Disconnect leaves the current room, closes the transport with a
// normal close, and disables reconnection. Safe to call twice.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	room := c.currentRoom
	tr := c.tr
	c.currentRoom = ""
	c.currentPassword = ""
	c.queue = nil
	c.mu.Unlock()

	if tr == nil {
		return
	}
	if room != "" {
		_ = c.write(tr, &protocol.LeaveRoom{
			Header: c.header(protocol.MsgLeaveRoom),
			Code:   room,
		})
	}
	_ = tr.Close(websocket.StatusNormalClosure, "Client disconnect")
}

// WaitConnected blocks until the transport is up, the timeout
// elapses, or ctx is cancelled.
func (c *Client) WaitConnected(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		up := c.tr != nil
		c.mu.Unlock()
		if up {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return fmt.Errorf("relay not reachable after %s", timeout)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) header(msgType string) protocol.Header {
	return protocol.NewHeader(msgType, c.deviceID)
}

// send encodes v and writes it to the current transport.
func (c *Client) send(v any) error {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return errNotConnected
	}
	return c.write(tr, v)
}

func (c *Client) write(tr Transport, v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return tr.Write(ctx, data)
}

// dispatch fires matching one-shot waiters, then the OnFrame observer.
func (c *Client) dispatch(h protocol.Header, data []byte) {
	c.mu.Lock()
	var fired []*listener
	kept := c.listeners[:0]
	for _, l := range c.listeners {
		if l.pred(h, data) {
			fired = append(fired, l)
		} else {
			kept = append(kept, l)
		}
	}
	c.listeners = kept
	onFrame := c.OnFrame
	c.mu.Unlock()

	for _, l := range fired {
		l.ch <- data
	}
	if onFrame != nil {
		onFrame(h, data)
	}
}

func (c *Client) addListener(pred func(protocol.Header, []byte) bool) *listener {
	l := &listener{pred: pred, ch: make(chan []byte, 1)}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
	return l
}

func (c *Client) removeListener(l *listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cand := range c.listeners {
		if cand == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// awaitListener blocks until the listener fires or the timeout
// elapses.
func (c *Client) awaitListener(l *listener, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-l.ch:
		return data, nil
	case <-timer.C:
		c.removeListener(l)
		return nil, fmt.Errorf("timed out after %s", timeout)
	}
}

// Once registers a one-shot waiter for the first frame matching pred.
// cb receives the frame, or nil if the timeout elapses first. The
// predicate must not call back into the client.
func (c *Client) Once(pred func(h protocol.Header, data []byte) bool, timeout time.Duration, cb func(data []byte)) {
	l := c.addListener(pred)
	go func() {
		data, err := c.awaitListener(l, timeout)
		if err != nil {
			cb(nil)
			return
		}
		cb(data)
	}()
}

// rejoin re-enters the remembered room after a reconnect, then either
// flushes the offline queue (room_joined) or discards it (error).
func (c *Client) rejoin() {
	c.mu.Lock()
	room, password, branch := c.currentRoom, c.currentPassword, c.currentBranch
	c.mu.Unlock()
	if room == "" {
		return
	}

	slog.Info("rejoining room", "room", room)
	l := c.addListener(func(h protocol.Header, _ []byte) bool {
		return h.Type == protocol.MsgRoomJoined || h.Type == protocol.MsgError
	})
	err := c.send(&protocol.JoinRoom{
		Header:   c.header(protocol.MsgJoinRoom),
		Code:     room,
		Name:     c.name,
		Password: password,
		Branch:   branch,
	})
	if err != nil {
		c.removeListener(l)
		return
	}

	data, err := c.awaitListener(l, requestTimeout)
	if err != nil {
		slog.Warn("rejoin timed out", "room", room)
		return
	}
	h, err := protocol.Decode(data)
	if err != nil || h.Type != protocol.MsgRoomJoined {
		c.mu.Lock()
		dropped := len(c.queue)
		c.queue = nil
		c.mu.Unlock()
		slog.Warn("rejoin rejected, discarding queued changes", "room", room, "queued", dropped)
		return
	}
	c.flushQueue()
}

// ReportFileChange forwards one watcher change to the room, queueing
// it while disconnected. No-op when not in a room.
func (c *Client) ReportFileChange(change protocol.FileChange) {
	c.mu.Lock()
	room := c.currentRoom
	connected := c.tr != nil
	c.mu.Unlock()
	if room == "" {
		return
	}
	if !connected {
		c.enqueue(change)
		return
	}
	err := c.send(&protocol.FileChangeMsg{
		Header: c.header(protocol.MsgFileChange),
		Code:   room,
		Name:   c.name,
		Change: change,
	})
	if err != nil {
		c.enqueue(change)
	}
}

func (c *Client) enqueue(change protocol.FileChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) >= protocol.MaxQueuedChanges {
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, change)
}

// flushQueue drains the offline queue in original order.
func (c *Client) flushQueue() {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	room := c.currentRoom
	c.mu.Unlock()
	if len(pending) == 0 || room == "" {
		return
	}

	slog.Info("flushing queued changes", "room", room, "count", len(pending))
	for _, change := range pending {
		_ = c.send(&protocol.FileChangeMsg{
			Header: c.header(protocol.MsgFileChange),
			Code:   room,
			Name:   c.name,
			Change: change,
		})
	}
}

// heartbeatLoop sends a heartbeat every interval while a room is
// joined. It stops when the connection's context is cancelled.
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(protocol.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			room, status, branch := c.currentRoom, c.currentStatus, c.currentBranch
			c.mu.Unlock()
			if room == "" {
				continue
			}
			if err := c.send(&protocol.Heartbeat{
				Header: c.header(protocol.MsgHeartbeat),
				Code:   room,
				Status: status,
				Branch: branch,
			}); err != nil {
				slog.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}
