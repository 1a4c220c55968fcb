package protocol

// Header carries the fields present on every envelope. Client→server
// frames additionally set DeviceID.
type Header struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// Client→server envelopes.

// CreateRoom asks the relay to create a fresh room and seat the sender.
type CreateRoom struct {
	Header
	Name           string `json:"name"`
	Password       string `json:"password,omitempty"`
	IsPublic       bool   `json:"isPublic,omitempty"`
	ExpiresInHours int    `json:"expiresInHours,omitempty"`
	Branch         string `json:"branch,omitempty"`
}

// JoinRoom asks the relay to seat the sender in an existing room.
type JoinRoom struct {
	Header
	Code     string `json:"code"`
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	Branch   string `json:"branch,omitempty"`
}

// LeaveRoom removes the sender's seat.
type LeaveRoom struct {
	Header
	Code string `json:"code"`
}

// Heartbeat refreshes the sender's liveness and presence status.
type Heartbeat struct {
	Header
	Code   string `json:"code"`
	Status string `json:"status,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// FileChangeMsg reports one observed file modification.
type FileChangeMsg struct {
	Header
	Code   string     `json:"code"`
	Name   string     `json:"name"`
	Change FileChange `json:"change"`
}

// DeclareWorking replaces the sender's declared working set.
type DeclareWorking struct {
	Header
	Code  string   `json:"code"`
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// ChatMessage carries one chat line to the room.
type ChatMessage struct {
	Header
	Code    string `json:"code"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// RequestStatus asks for a full room snapshot.
type RequestStatus struct {
	Header
	Code string `json:"code"`
}

// SyncRequest is equivalent to RequestStatus; kept as a distinct type
// for clients that resynchronize after reconnecting.
type SyncRequest struct {
	Header
	Code string `json:"code"`
}

// DeclareTyping marks the file the sender is typing in. A nil File
// clears the indicator.
type DeclareTyping struct {
	Header
	Code string  `json:"code"`
	Name string  `json:"name"`
	File *string `json:"file"`
}

// LockFile requests an advisory lock on a file.
type LockFile struct {
	Header
	Code string `json:"code"`
	Name string `json:"name"`
	File string `json:"file"`
}

// UnlockFile releases an advisory lock.
type UnlockFile struct {
	Header
	Code string `json:"code"`
	Name string `json:"name"`
	File string `json:"file"`
}

// UpdateCursor publishes the sender's cursor position. A nil Cursor
// clears it.
type UpdateCursor struct {
	Header
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Cursor *Cursor `json:"cursor"`
}

// ShareTerminal pushes a chunk of terminal output to the room.
type ShareTerminal struct {
	Header
	Code   string `json:"code"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// ListRooms asks for the public room directory.
type ListRooms struct {
	Header
}

// GetTimeline asks for the last Limit timeline events (default 50).
type GetTimeline struct {
	Header
	Code  string `json:"code"`
	Limit int    `json:"limit,omitempty"`
}

// SetWebhook assigns or clears the room webhook. An empty URL clears.
type SetWebhook struct {
	Header
	Code   string   `json:"code"`
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"`
}

// SetRoomVisibility toggles a room's public discoverability.
type SetRoomVisibility struct {
	Header
	Code     string `json:"code"`
	IsPublic bool   `json:"isPublic"`
}

// Server→client envelopes.

// RoomCreated confirms room creation to the creator.
type RoomCreated struct {
	Header
	Room       RoomInfo `json:"room"`
	InviteLink string   `json:"inviteLink"`
}

// RoomJoined confirms a successful join to the joiner.
type RoomJoined struct {
	Header
	Room RoomInfo `json:"room"`
}

// RoomLeft confirms a leave to the leaver.
type RoomLeft struct {
	Header
	Code string `json:"code"`
}

// MemberJoined announces a new member to the rest of the room.
type MemberJoined struct {
	Header
	Code   string     `json:"code"`
	Member MemberInfo `json:"member"`
}

// MemberLeft announces a departed member.
type MemberLeft struct {
	Header
	Code           string `json:"code"`
	MemberDeviceID string `json:"memberDeviceId"`
	Name           string `json:"name"`
	Reason         string `json:"reason,omitempty"`
}

// MemberUpdated announces a change to a member's declared state.
type MemberUpdated struct {
	Header
	Code   string     `json:"code"`
	Member MemberInfo `json:"member"`
}

// FileChanged forwards a file change to the room.
type FileChanged struct {
	Header
	Code   string     `json:"code"`
	Change FileChange `json:"change"`
}

// ChatReceived forwards a chat line to the room.
type ChatReceived struct {
	Header
	Code    string `json:"code"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// RoomStatus carries a full room snapshot.
type RoomStatus struct {
	Header
	Room RoomInfo `json:"room"`
}

// ConflictWarning reports that multiple members touched the same file.
type ConflictWarning struct {
	Header
	Code    string   `json:"code"`
	File    string   `json:"file"`
	Authors []string `json:"authors"`
	Message string   `json:"message"`
}

// ErrorMsg is the in-band error reply.
type ErrorMsg struct {
	Header
	Message string `json:"message"`
}

// HeartbeatAck acknowledges a heartbeat.
type HeartbeatAck struct {
	Header
}

// TypingIndicator forwards a typing hint to the room.
type TypingIndicator struct {
	Header
	Code           string  `json:"code"`
	MemberDeviceID string  `json:"memberDeviceId"`
	Name           string  `json:"name"`
	File           *string `json:"file"`
}

// FileLocked announces a newly acquired lock.
type FileLocked struct {
	Header
	Code           string `json:"code"`
	File           string `json:"file"`
	LockedBy       string `json:"lockedBy"`
	MemberDeviceID string `json:"memberDeviceId"`
}

// FileUnlocked announces a released lock.
type FileUnlocked struct {
	Header
	Code       string `json:"code"`
	File       string `json:"file"`
	UnlockedBy string `json:"unlockedBy"`
}

// LockError reports a failed lock attempt to the requester.
type LockError struct {
	Header
	Code     string `json:"code"`
	File     string `json:"file"`
	Error    string `json:"error"`
	LockedBy string `json:"lockedBy,omitempty"`
}

// CursorUpdated forwards a cursor position to the room.
type CursorUpdated struct {
	Header
	Code           string  `json:"code"`
	MemberDeviceID string  `json:"memberDeviceId"`
	Name           string  `json:"name"`
	Cursor         *Cursor `json:"cursor"`
}

// TerminalShared forwards terminal output to the room.
type TerminalShared struct {
	Header
	Code           string `json:"code"`
	MemberDeviceID string `json:"memberDeviceId"`
	Name           string `json:"name"`
	Output         string `json:"output"`
}

// RoomList carries the public room directory.
type RoomList struct {
	Header
	Rooms []RoomSummary `json:"rooms"`
}

// Timeline carries the tail of a room's event timeline.
type Timeline struct {
	Header
	Code   string          `json:"code"`
	Events []TimelineEvent `json:"events"`
}

// BranchWarning reports git branch divergence within a room.
type BranchWarning struct {
	Header
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Branches map[string]string `json:"branches"`
}
