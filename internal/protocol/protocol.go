// Package protocol defines the CodeHive wire protocol: typed JSON
// envelopes exchanged between agents and the relay over a WebSocket
// text-frame transport, plus the shared room data model.
package protocol

import "time"

// Client→server message types (closed set).
const (
	MsgCreateRoom        = "create_room"
	MsgJoinRoom          = "join_room"
	MsgLeaveRoom         = "leave_room"
	MsgHeartbeat         = "heartbeat"
	MsgFileChange        = "file_change"
	MsgDeclareWorking    = "declare_working"
	MsgChatMessage       = "chat_message"
	MsgRequestStatus     = "request_status"
	MsgSyncRequest       = "sync_request"
	MsgDeclareTyping     = "declare_typing"
	MsgLockFile          = "lock_file"
	MsgUnlockFile        = "unlock_file"
	MsgUpdateCursor      = "update_cursor"
	MsgShareTerminal     = "share_terminal"
	MsgListRooms         = "list_rooms"
	MsgGetTimeline       = "get_timeline"
	MsgSetWebhook        = "set_webhook"
	MsgSetRoomVisibility = "set_room_visibility"
)

// Server→client message types (closed set).
const (
	MsgRoomCreated     = "room_created"
	MsgRoomJoined      = "room_joined"
	MsgRoomLeft        = "room_left"
	MsgMemberJoined    = "member_joined"
	MsgMemberLeft      = "member_left"
	MsgMemberUpdated   = "member_updated"
	MsgFileChanged     = "file_changed"
	MsgChatReceived    = "chat_received"
	MsgRoomStatus      = "room_status"
	MsgConflictWarning = "conflict_warning"
	MsgError           = "error"
	MsgHeartbeatAck    = "heartbeat_ack"
	MsgTypingIndicator = "typing_indicator"
	MsgFileLocked      = "file_locked"
	MsgFileUnlocked    = "file_unlocked"
	MsgLockError       = "lock_error"
	MsgCursorUpdated   = "cursor_updated"
	MsgTerminalShared  = "terminal_shared"
	MsgRoomList        = "room_list"
	MsgTimeline        = "timeline"
	MsgBranchWarning   = "branch_warning"
)

// WebSocket close codes. Defined for completeness; the relay prefers
// in-band error frames and keeps connections open on bad input.
const (
	CloseRoomClosed      = 4000
	CloseInvalidMessage  = 4001
	CloseRoomNotFound    = 4002
	CloseDuplicateDevice = 4003
)

// Room capacity bounds.
const (
	MaxRoomMembers    = 20
	MaxLocksPerRoom   = 50
	MaxRecentChanges  = 100
	MaxTimelineEvents = 200
)

// Handler-level validation bounds.
const (
	MaxNameLen        = 50
	MaxChatLen        = 10_000
	MaxWorkingFiles   = 100
	MaxPathLen        = 500
	MaxTerminalOutput = 50_000
)

// Timing constants shared by relay and agent.
const (
	TypingTimeout     = 10 * time.Second
	HeartbeatInterval = 15 * time.Second
	HeartbeatTimeout  = 45 * time.Second
	RoomExpiryCheck   = 5 * time.Minute
	PersistInterval   = 60 * time.Second
	WebhookTimeout    = 5 * time.Second
)

// MaxFrameBytes is the maximum accepted inbound frame size.
const MaxFrameBytes = 1 << 20 // 1 MiB

// MaxQueuedChanges bounds the agent's offline file-change queue.
const MaxQueuedChanges = 50

// Default relay endpoint.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 4819
)

// Member status values.
const (
	StatusActive = "active"
	StatusIdle   = "idle"
	StatusAway   = "away"
)

// File change types.
const (
	ChangeAdd    = "add"
	ChangeModify = "change"
	ChangeUnlink = "unlink"
)

// Timeline event types.
const (
	EventJoin         = "join"
	EventLeave        = "leave"
	EventChat         = "chat"
	EventFileChange   = "file_change"
	EventLock         = "lock"
	EventUnlock       = "unlock"
	EventConflict     = "conflict"
	EventBranchChange = "branch_change"
)

// Webhook event names. "all" subscribes to every event.
const (
	WebhookAll        = "all"
	WebhookJoin       = "join"
	WebhookLeave      = "leave"
	WebhookChat       = "chat"
	WebhookFileChange = "file_change"
	WebhookConflict   = "conflict"
)
