package client

import (
	"fmt"
	"time"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
)

// request sends msg and waits for the first frame of the wanted type,
// treating an in-band error frame as failure.
func (c *Client) request(msg any, wantType string, timeout time.Duration) ([]byte, error) {
	l := c.addListener(func(h protocol.Header, _ []byte) bool {
		return h.Type == wantType || h.Type == protocol.MsgError
	})
	if err := c.send(msg); err != nil {
		c.removeListener(l)
		return nil, err
	}
	data, err := c.awaitListener(l, timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wantType, err)
	}
	h, err := protocol.Decode(data)
	if err != nil {
		return nil, err
	}
	if h.Type == protocol.MsgError {
		e, err := protocol.DecodeAs[protocol.ErrorMsg](data)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("relay: %s", e.Message)
	}
	return data, nil
}

// CreateRoom creates a room on the relay and joins it as the creator.
func (c *Client) CreateRoom(password string, isPublic bool, expiresInHours int) (*protocol.RoomCreated, error) {
	c.mu.Lock()
	branch := c.currentBranch
	c.mu.Unlock()

	data, err := c.request(&protocol.CreateRoom{
		Header:         c.header(protocol.MsgCreateRoom),
		Name:           c.name,
		Password:       password,
		IsPublic:       isPublic,
		ExpiresInHours: expiresInHours,
		Branch:         branch,
	}, protocol.MsgRoomCreated, requestTimeout)
	if err != nil {
		return nil, err
	}
	msg, err := protocol.DecodeAs[protocol.RoomCreated](data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.currentRoom = msg.Room.Code
	c.currentPassword = password
	c.mu.Unlock()
	return msg, nil
}

// JoinRoom joins an existing room and remembers the credentials for
// automatic rejoin after reconnects.
func (c *Client) JoinRoom(code, password string) (*protocol.RoomJoined, error) {
	c.mu.Lock()
	branch := c.currentBranch
	c.mu.Unlock()

	data, err := c.request(&protocol.JoinRoom{
		Header:   c.header(protocol.MsgJoinRoom),
		Code:     code,
		Name:     c.name,
		Password: password,
		Branch:   branch,
	}, protocol.MsgRoomJoined, requestTimeout)
	if err != nil {
		return nil, err
	}
	msg, err := protocol.DecodeAs[protocol.RoomJoined](data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.currentRoom = msg.Room.Code
	c.currentPassword = password
	c.mu.Unlock()
	c.flushQueue()
	return msg, nil
}

// LeaveRoom leaves the current room and clears the remembered state.
// No-op when not in a room.
func (c *Client) LeaveRoom() {
	c.mu.Lock()
	room := c.currentRoom
	c.currentRoom = ""
	c.currentPassword = ""
	c.queue = nil
	c.mu.Unlock()
	if room == "" {
		return
	}
	_ = c.send(&protocol.LeaveRoom{
		Header: c.header(protocol.MsgLeaveRoom),
		Code:   room,
	})
}

// RequestStatus fetches the current room snapshot.
func (c *Client) RequestStatus() (*protocol.RoomStatus, error) {
	room := c.CurrentRoom()
	if room == "" {
		return nil, fmt.Errorf("not in a room")
	}
	data, err := c.request(&protocol.RequestStatus{
		Header: c.header(protocol.MsgRequestStatus),
		Code:   room,
	}, protocol.MsgRoomStatus, queryTimeout)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeAs[protocol.RoomStatus](data)
}

// GetTimeline fetches the last limit timeline events (relay default
// when limit is 0).
func (c *Client) GetTimeline(limit int) (*protocol.Timeline, error) {
	room := c.CurrentRoom()
	if room == "" {
		return nil, fmt.Errorf("not in a room")
	}
	data, err := c.request(&protocol.GetTimeline{
		Header: c.header(protocol.MsgGetTimeline),
		Code:   room,
		Limit:  limit,
	}, protocol.MsgTimeline, queryTimeout)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeAs[protocol.Timeline](data)
}

// ListRooms fetches the public room directory.
func (c *Client) ListRooms() (*protocol.RoomList, error) {
	data, err := c.request(&protocol.ListRooms{
		Header: c.header(protocol.MsgListRooms),
	}, protocol.MsgRoomList, queryTimeout)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeAs[protocol.RoomList](data)
}

// LockFile acquires an advisory lock, waiting for the relay's verdict.
func (c *Client) LockFile(file string) (*protocol.FileLocked, error) {
	room := c.CurrentRoom()
	if room == "" {
		return nil, fmt.Errorf("not in a room")
	}
	l := c.addListener(func(h protocol.Header, data []byte) bool {
		switch h.Type {
		case protocol.MsgFileLocked:
			msg, err := protocol.DecodeAs[protocol.FileLocked](data)
			return err == nil && msg.File == file
		case protocol.MsgLockError:
			msg, err := protocol.DecodeAs[protocol.LockError](data)
			return err == nil && msg.File == file
		case protocol.MsgError:
			return true
		}
		return false
	})
	err := c.send(&protocol.LockFile{
		Header: c.header(protocol.MsgLockFile),
		Code:   room,
		Name:   c.name,
		File:   file,
	})
	if err != nil {
		c.removeListener(l)
		return nil, err
	}
	data, err := c.awaitListener(l, queryTimeout)
	if err != nil {
		return nil, err
	}
	h, err := protocol.Decode(data)
	if err != nil {
		return nil, err
	}
	switch h.Type {
	case protocol.MsgFileLocked:
		return protocol.DecodeAs[protocol.FileLocked](data)
	case protocol.MsgLockError:
		msg, err := protocol.DecodeAs[protocol.LockError](data)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s", msg.Error)
	default:
		msg, err := protocol.DecodeAs[protocol.ErrorMsg](data)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("relay: %s", msg.Message)
	}
}

// UnlockFile releases an advisory lock. Fire-and-forget; the relay
// broadcasts file_unlocked on success. No-op when not in a room.
func (c *Client) UnlockFile(file string) {
	room := c.CurrentRoom()
	if room == "" {
		return
	}
	_ = c.send(&protocol.UnlockFile{
		Header: c.header(protocol.MsgUnlockFile),
		Code:   room,
		Name:   c.name,
		File:   file,
	})
}

// SendChat sends one chat line. No-op when not in a room.
func (c *Client) SendChat(content string) {
	room := c.CurrentRoom()
	if room == "" {
		return
	}
	_ = c.send(&protocol.ChatMessage{
		Header:  c.header(protocol.MsgChatMessage),
		Code:    room,
		Name:    c.name,
		Content: content,
	})
}

// DeclareWorking replaces the declared working set. No-op when not in
// a room.
func (c *Client) DeclareWorking(files []string) {
	room := c.CurrentRoom()
	if room == "" {
		return
	}
	_ = c.send(&protocol.DeclareWorking{
		Header: c.header(protocol.MsgDeclareWorking),
		Code:   room,
		Name:   c.name,
		Files:  files,
	})
}

// DeclareTyping marks the file being typed in; nil clears. No-op when
// not in a room.
func (c *Client) DeclareTyping(file *string) {
	room := c.CurrentRoom()
	if room == "" {
		return
	}
	_ = c.send(&protocol.DeclareTyping{
		Header: c.header(protocol.MsgDeclareTyping),
		Code:   room,
		Name:   c.name,
		File:   file,
	})
}

// UpdateCursor publishes the cursor position; nil clears. No-op when
// not in a room.
func (c *Client) UpdateCursor(cursor *protocol.Cursor) {
	room := c.CurrentRoom()
	if room == "" {
		return
	}
	_ = c.send(&protocol.UpdateCursor{
		Header: c.header(protocol.MsgUpdateCursor),
		Code:   room,
		Name:   c.name,
		Cursor: cursor,
	})
}

// ShareTerminal pushes terminal output to the room, trimmed to the
// protocol cap. No-op when not in a room.
func (c *Client) ShareTerminal(output string) {
	room := c.CurrentRoom()
	if room == "" {
		return
	}
	if len(output) > protocol.MaxTerminalOutput {
		output = output[len(output)-protocol.MaxTerminalOutput:]
	}
	_ = c.send(&protocol.ShareTerminal{
		Header: c.header(protocol.MsgShareTerminal),
		Code:   room,
		Name:   c.name,
		Output: output,
	})
}
