package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
	"github.com/CodeHiveAPP/codehive/internal/util/testutil"
)

// fakeTransport drives the client state machine without a network.
type fakeTransport struct {
	in  chan []byte
	out chan []byte

	mu          sync.Mutex
	closeCode   websocket.StatusCode
	closeReason string
	closed      chan struct{}
	closeOnce   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.closed:
		return nil, errors.New("transport closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("transport closed")
	default:
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.out <- cp
	return nil
}

func (f *fakeTransport) Close(code websocket.StatusCode, reason string) error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.closeReason = reason
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

// next returns the next frame the client wrote, failing after 2s.
func (f *fakeTransport) next(t *testing.T) ([]byte, protocol.Header) {
	t.Helper()
	select {
	case data := <-f.out:
		h, err := protocol.Decode(data)
		require.NoError(t, err)
		return data, h
	case <-time.After(2 * time.Second):
		t.Fatal("client wrote no frame")
		return nil, protocol.Header{}
	}
}

func (f *fakeTransport) reply(t *testing.T, v any) {
	t.Helper()
	data, err := protocol.Encode(v)
	require.NoError(t, err)
	f.in <- data
}

func startClient(t *testing.T) (*Client, *fakeTransport) {
	t.Helper()
	c := New("ws://test", "alice")
	ft := newFakeTransport()
	c.DialFn = func(ctx context.Context) (Transport, error) {
		return ft, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Connect(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	testutil.RequireEventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.tr != nil
	})
	return c, ft
}

type result[T any] struct {
	msg *T
	err error
}

func TestCreateRoomRoundTrip(t *testing.T) {
	c, ft := startClient(t)

	resCh := make(chan result[protocol.RoomCreated], 1)
	go func() {
		msg, err := c.CreateRoom("hunter2", true, 24)
		resCh <- result[protocol.RoomCreated]{msg, err}
	}()

	data, h := ft.next(t)
	require.Equal(t, protocol.MsgCreateRoom, h.Type)
	req, err := protocol.DecodeAs[protocol.CreateRoom](data)
	require.NoError(t, err)
	assert.Equal(t, "alice", req.Name)
	assert.Equal(t, "hunter2", req.Password)
	assert.Equal(t, c.DeviceID(), req.DeviceID)

	ft.reply(t, &protocol.RoomCreated{
		Header:     protocol.NewHeader(protocol.MsgRoomCreated, ""),
		Room:       protocol.RoomInfo{Code: "HIVE-ABCDEF"},
		InviteLink: "codehive://127.0.0.1:4819/join/HIVE-ABCDEF",
	})

	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, "HIVE-ABCDEF", res.msg.Room.Code)
	assert.Equal(t, "HIVE-ABCDEF", c.CurrentRoom())
}

func TestJoinRoomRelayError(t *testing.T) {
	c, ft := startClient(t)

	resCh := make(chan result[protocol.RoomJoined], 1)
	go func() {
		msg, err := c.JoinRoom("HIVE-ABCDEF", "nope")
		resCh <- result[protocol.RoomJoined]{msg, err}
	}()

	_, h := ft.next(t)
	require.Equal(t, protocol.MsgJoinRoom, h.Type)
	ft.reply(t, &protocol.ErrorMsg{
		Header:  protocol.NewHeader(protocol.MsgError, ""),
		Message: "Wrong password",
	})

	res := <-resCh
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Wrong password")
	assert.Equal(t, "", c.CurrentRoom())
}

func TestSendersNoOpOutsideRoom(t *testing.T) {
	c, ft := startClient(t)

	c.SendChat("hello")
	c.DeclareWorking([]string{"main.go"})
	c.UnlockFile("main.go")
	c.ReportFileChange(protocol.FileChange{Path: "main.go"})

	select {
	case data := <-ft.out:
		t.Fatalf("unexpected frame written: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLockFileVerdicts(t *testing.T) {
	c, ft := startClient(t)
	joinRoom(t, c, ft, "HIVE-ABCDEF")

	resCh := make(chan result[protocol.FileLocked], 1)
	go func() {
		msg, err := c.LockFile("main.go")
		resCh <- result[protocol.FileLocked]{msg, err}
	}()
	_, h := ft.next(t)
	require.Equal(t, protocol.MsgLockFile, h.Type)
	// A lock outcome for some other file must not satisfy the waiter.
	ft.reply(t, &protocol.FileLocked{
		Header: protocol.NewHeader(protocol.MsgFileLocked, ""),
		Code:   "HIVE-ABCDEF", File: "other.go", LockedBy: "bob",
	})
	ft.reply(t, &protocol.FileLocked{
		Header: protocol.NewHeader(protocol.MsgFileLocked, ""),
		Code:   "HIVE-ABCDEF", File: "main.go", LockedBy: "alice",
	})
	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, "main.go", res.msg.File)

	go func() {
		msg, err := c.LockFile("main.go")
		resCh <- result[protocol.FileLocked]{msg, err}
	}()
	ft.next(t)
	ft.reply(t, &protocol.LockError{
		Header: protocol.NewHeader(protocol.MsgLockError, ""),
		Code:   "HIVE-ABCDEF", File: "main.go",
		Error: "main.go is locked by bob", LockedBy: "bob",
	})
	res = <-resCh
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "locked by bob")
}

func TestOnceFiresAtMostOnce(t *testing.T) {
	c, ft := startClient(t)

	var mu sync.Mutex
	var got [][]byte
	c.Once(func(h protocol.Header, _ []byte) bool {
		return h.Type == protocol.MsgChatReceived
	}, 2*time.Second, func(data []byte) {
		mu.Lock()
		got = append(got, data)
		mu.Unlock()
	})

	chat := &protocol.ChatReceived{
		Header: protocol.NewHeader(protocol.MsgChatReceived, ""),
		Code:   "HIVE-ABCDEF", Name: "bob", Content: "hi",
	}
	ft.reply(t, chat)
	ft.reply(t, chat)

	testutil.RequireEventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	})
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 1)
}

func TestOnceTimeout(t *testing.T) {
	c, _ := startClient(t)

	done := make(chan []byte, 1)
	c.Once(func(h protocol.Header, _ []byte) bool { return false },
		20*time.Millisecond, func(data []byte) { done <- data })

	select {
	case data := <-done:
		assert.Nil(t, data)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout callback never fired")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.listeners)
}

func TestQueueCap(t *testing.T) {
	c := New("ws://test", "alice")
	c.mu.Lock()
	c.currentRoom = "HIVE-ABCDEF"
	c.mu.Unlock()

	for i := 0; i < protocol.MaxQueuedChanges+5; i++ {
		c.ReportFileChange(protocol.FileChange{Path: fmt.Sprintf("f%d.go", i)})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.queue, protocol.MaxQueuedChanges)
	assert.Equal(t, "f5.go", c.queue[0].Path)
	assert.Equal(t, fmt.Sprintf("f%d.go", protocol.MaxQueuedChanges+4), c.queue[len(c.queue)-1].Path)
}

func joinRoom(t *testing.T, c *Client, ft *fakeTransport, code string) {
	t.Helper()
	resCh := make(chan result[protocol.RoomJoined], 1)
	go func() {
		msg, err := c.JoinRoom(code, "pw")
		resCh <- result[protocol.RoomJoined]{msg, err}
	}()
	_, h := ft.next(t)
	require.Equal(t, protocol.MsgJoinRoom, h.Type)
	ft.reply(t, &protocol.RoomJoined{
		Header: protocol.NewHeader(protocol.MsgRoomJoined, ""),
		Room:   protocol.RoomInfo{Code: code},
	})
	res := <-resCh
	require.NoError(t, res.err)
}

func TestReconnectRejoinAndFlush(t *testing.T) {
	c := New("ws://test", "alice")
	c.SetBranch("main")
	ft1 := newFakeTransport()
	ft2 := newFakeTransport()
	transports := make(chan *fakeTransport, 2)
	transports <- ft1
	c.DialFn = func(ctx context.Context) (Transport, error) {
		return <-transports, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		ft2.Close(websocket.StatusGoingAway, "")
		<-done
	})

	testutil.RequireEventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.tr != nil
	})
	joinRoom(t, c, ft1, "HIVE-ABCDEF")

	// Drop the connection and report changes while offline.
	require.NoError(t, ft1.Close(websocket.StatusAbnormalClosure, ""))
	testutil.RequireEventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.tr == nil
	})
	for _, path := range []string{"a.go", "b.go", "c.go"} {
		c.ReportFileChange(protocol.FileChange{Path: path, Type: protocol.ChangeModify})
	}

	// Let the reconnect loop pick up the second transport.
	transports <- ft2
	data, h := ft2.next(t)
	require.Equal(t, protocol.MsgJoinRoom, h.Type)
	join, err := protocol.DecodeAs[protocol.JoinRoom](data)
	require.NoError(t, err)
	assert.Equal(t, "HIVE-ABCDEF", join.Code)
	assert.Equal(t, "pw", join.Password)
	assert.Equal(t, "main", join.Branch)

	ft2.reply(t, &protocol.RoomJoined{
		Header: protocol.NewHeader(protocol.MsgRoomJoined, ""),
		Room:   protocol.RoomInfo{Code: "HIVE-ABCDEF"},
	})

	// The queue flushes in original order.
	for _, want := range []string{"a.go", "b.go", "c.go"} {
		data, h := ft2.next(t)
		require.Equal(t, protocol.MsgFileChange, h.Type)
		fc, err := protocol.DecodeAs[protocol.FileChangeMsg](data)
		require.NoError(t, err)
		assert.Equal(t, want, fc.Change.Path)
	}
	c.mu.Lock()
	assert.Empty(t, c.queue)
	c.mu.Unlock()
}

func TestRejoinRejectedDiscardsQueue(t *testing.T) {
	c := New("ws://test", "alice")
	ft1 := newFakeTransport()
	ft2 := newFakeTransport()
	transports := make(chan *fakeTransport, 2)
	transports <- ft1
	c.DialFn = func(ctx context.Context) (Transport, error) {
		return <-transports, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		ft2.Close(websocket.StatusGoingAway, "")
		<-done
	})

	testutil.RequireEventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.tr != nil
	})
	joinRoom(t, c, ft1, "HIVE-ABCDEF")
	require.NoError(t, ft1.Close(websocket.StatusAbnormalClosure, ""))
	testutil.RequireEventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.tr == nil
	})
	c.ReportFileChange(protocol.FileChange{Path: "a.go"})

	transports <- ft2
	_, h := ft2.next(t)
	require.Equal(t, protocol.MsgJoinRoom, h.Type)
	ft2.reply(t, &protocol.ErrorMsg{
		Header:  protocol.NewHeader(protocol.MsgError, ""),
		Message: "Room not found",
	})

	testutil.RequireEventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.queue) == 0
	})
	select {
	case data := <-ft2.out:
		t.Fatalf("unexpected frame after rejected rejoin: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnect(t *testing.T) {
	c, ft := startClient(t)
	joinRoom(t, c, ft, "HIVE-ABCDEF")

	c.Disconnect()
	c.Disconnect() // idempotent

	data, h := ft.next(t)
	require.Equal(t, protocol.MsgLeaveRoom, h.Type)
	leave, err := protocol.DecodeAs[protocol.LeaveRoom](data)
	require.NoError(t, err)
	assert.Equal(t, "HIVE-ABCDEF", leave.Code)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	assert.Equal(t, websocket.StatusNormalClosure, ft.closeCode)
	assert.Equal(t, "Client disconnect", ft.closeReason)
	assert.Equal(t, "", c.CurrentRoom())
}
