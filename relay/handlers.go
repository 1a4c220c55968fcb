package relay

import (
	"fmt"
	"log/slog"

	"github.com/CodeHiveAPP/codehive/internal/metrics"
	"github.com/CodeHiveAPP/codehive/internal/protocol"
	"github.com/CodeHiveAPP/codehive/internal/relay/room"
	"github.com/CodeHiveAPP/codehive/internal/util/sanitize"
)

// dispatch decodes the envelope header, updates the session, and
// routes the frame. A malformed frame earns an in-band error; the
// connection stays open.
func (s *Server) dispatch(sess *session, conn *room.Conn, data []byte) {
	h, err := protocol.Decode(data)
	if err != nil {
		metrics.InvalidFramesTotal.Inc()
		s.sendError(conn, "Invalid message format")
		return
	}
	if h.DeviceID != "" {
		sess.deviceID = h.DeviceID
	}
	metrics.WSMessagesTotal.WithLabelValues("in", h.Type).Inc()

	switch h.Type {
	case protocol.MsgCreateRoom:
		s.handleCreateRoom(sess, conn, data)
	case protocol.MsgJoinRoom:
		s.handleJoinRoom(sess, conn, data)
	case protocol.MsgLeaveRoom:
		s.handleLeaveRoom(sess, conn, data)
	case protocol.MsgHeartbeat:
		s.handleHeartbeat(sess, conn, data)
	case protocol.MsgFileChange:
		s.handleFileChange(sess, conn, data)
	case protocol.MsgDeclareWorking:
		s.handleDeclareWorking(sess, conn, data)
	case protocol.MsgChatMessage:
		s.handleChatMessage(sess, conn, data)
	case protocol.MsgRequestStatus, protocol.MsgSyncRequest:
		s.handleRequestStatus(sess, conn, data)
	case protocol.MsgDeclareTyping:
		s.handleDeclareTyping(sess, conn, data)
	case protocol.MsgLockFile:
		s.handleLockFile(sess, conn, data)
	case protocol.MsgUnlockFile:
		s.handleUnlockFile(sess, conn, data)
	case protocol.MsgUpdateCursor:
		s.handleUpdateCursor(sess, conn, data)
	case protocol.MsgShareTerminal:
		s.handleShareTerminal(sess, conn, data)
	case protocol.MsgListRooms:
		s.handleListRooms(conn)
	case protocol.MsgGetTimeline:
		s.handleGetTimeline(conn, data)
	case protocol.MsgSetWebhook:
		s.handleSetWebhook(conn, data)
	case protocol.MsgSetRoomVisibility:
		s.handleSetRoomVisibility(conn, data)
	default:
		slog.Debug("unhandled message type", "type", h.Type, "device", sess.deviceID)
		s.sendError(conn, fmt.Sprintf("Unknown message type: %s", h.Type))
	}
}

func (s *Server) send(conn *room.Conn, v any) {
	if err := conn.Send(v); err != nil {
		slog.Debug("reply send failed", "error", err)
	}
}

func (s *Server) sendError(conn *room.Conn, message string) {
	s.send(conn, &protocol.ErrorMsg{
		Header:  protocol.NewHeader(protocol.MsgError, ""),
		Message: message,
	})
}

func validName(name string) bool {
	return len(name) >= 1 && len(name) <= protocol.MaxNameLen
}

// cleanName strips control characters from a display name before it
// is validated and broadcast to the room. The cap sits above the
// protocol limit so over-long names still fail validation rather
// than being silently trimmed.
func cleanName(name string) string {
	return sanitize.DisplayName(name, protocol.MaxNameLen+1)
}

func (s *Server) handleCreateRoom(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.CreateRoom](data)
	if err != nil {
		s.sendError(conn, "Invalid message format")
		return
	}
	msg.Name = cleanName(msg.Name)
	if !validName(msg.Name) {
		s.sendError(conn, fmt.Sprintf("Name must be 1-%d characters", protocol.MaxNameLen))
		return
	}

	r, err := s.registry.CreateRoom(msg.Name, msg.Password, msg.IsPublic, msg.ExpiresInHours)
	if err != nil {
		s.sendError(conn, "Could not create room")
		return
	}
	if err := r.AddMember(msg.DeviceID, msg.Name, conn, msg.Branch); err != nil {
		s.registry.Delete(r.Code())
		s.sendError(conn, err.Error())
		return
	}
	metrics.ActiveMembers.Inc()
	sess.roomCode = r.Code()
	slog.Info("room created", "room", r.Code(), "by", msg.Name, "public", msg.IsPublic)

	s.send(conn, &protocol.RoomCreated{
		Header:     protocol.NewHeader(protocol.MsgRoomCreated, ""),
		Room:       r.ToRoomInfo(),
		InviteLink: protocol.InviteURL(s.cfg.Host, s.cfg.Port, r.Code(), msg.Password),
	})
}

func (s *Server) handleJoinRoom(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.JoinRoom](data)
	if err != nil {
		s.sendError(conn, "Invalid message format")
		return
	}
	msg.Name = cleanName(msg.Name)
	if !validName(msg.Name) {
		s.sendError(conn, fmt.Sprintf("Name must be 1-%d characters", protocol.MaxNameLen))
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		s.sendError(conn, "Room not found")
		return
	}
	if !r.CheckPassword(msg.Password) {
		s.sendError(conn, "Wrong password")
		return
	}
	if err := r.AddMember(msg.DeviceID, msg.Name, conn, msg.Branch); err != nil {
		s.sendError(conn, err.Error())
		return
	}
	metrics.ActiveMembers.Inc()
	sess.roomCode = r.Code()
	slog.Info("member joined", "room", r.Code(), "name", msg.Name, "device", msg.DeviceID)

	// The joiner's own confirmation must precede the member_joined
	// broadcast.
	s.send(conn, &protocol.RoomJoined{
		Header: protocol.NewHeader(protocol.MsgRoomJoined, ""),
		Room:   r.ToRoomInfo(),
	})

	joined, _ := r.Member(msg.DeviceID)
	r.Broadcast(&protocol.MemberJoined{
		Header: protocol.NewHeader(protocol.MsgMemberJoined, ""),
		Code:   r.Code(),
		Member: joined,
	}, msg.DeviceID)

	if diverged, warning, branches := r.CheckBranchDivergence(); diverged {
		r.Broadcast(&protocol.BranchWarning{
			Header:   protocol.NewHeader(protocol.MsgBranchWarning, ""),
			Code:     r.Code(),
			Message:  warning,
			Branches: branches,
		}, "")
	}

	s.notifier.Fire(r.Webhook(), protocol.WebhookJoin, r.Code(), map[string]any{"name": msg.Name})
}

func (s *Server) handleLeaveRoom(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.LeaveRoom](data)
	if err != nil {
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}
	info := r.RemoveMember(msg.DeviceID)
	if info == nil {
		return
	}
	metrics.ActiveMembers.Dec()
	sess.roomCode = ""

	r.Broadcast(&protocol.MemberLeft{
		Header:         protocol.NewHeader(protocol.MsgMemberLeft, ""),
		Code:           r.Code(),
		MemberDeviceID: msg.DeviceID,
		Name:           info.Name,
		Reason:         "left",
	}, "")
	s.send(conn, &protocol.RoomLeft{
		Header: protocol.NewHeader(protocol.MsgRoomLeft, ""),
		Code:   r.Code(),
	})
	s.notifier.Fire(r.Webhook(), protocol.WebhookLeave, r.Code(), map[string]any{"name": info.Name})

	if r.IsEmpty() {
		s.registry.Delete(r.Code())
	}
}

func (s *Server) handleHeartbeat(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.Heartbeat](data)
	if err != nil {
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}
	branchChanged := r.UpdateHeartbeat(msg.DeviceID, msg.Status, msg.Branch)
	if branchChanged {
		if diverged, warning, branches := r.CheckBranchDivergence(); diverged {
			r.Broadcast(&protocol.BranchWarning{
				Header:   protocol.NewHeader(protocol.MsgBranchWarning, ""),
				Code:     r.Code(),
				Message:  warning,
				Branches: branches,
			}, "")
		}
	}
	s.send(conn, &protocol.HeartbeatAck{Header: protocol.NewHeader(protocol.MsgHeartbeatAck, "")})
}

func (s *Server) handleFileChange(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.FileChangeMsg](data)
	if err != nil {
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}

	// Writes from non-holders of an advisory lock are refused.
	if holder, holderDevice, locked := r.LockHolder(msg.Change.Path); locked && holderDevice != msg.DeviceID {
		s.sendError(conn, fmt.Sprintf("%s is locked by %s", msg.Change.Path, holder))
		return
	}

	change := msg.Change
	change.DeviceID = msg.DeviceID
	if change.Author == "" {
		change.Author = msg.Name
	}
	if change.Timestamp == 0 {
		change.Timestamp = msg.Timestamp
	}

	conflicts := r.RecordFileChange(change)

	// Peers see the change before any conflict warning it triggers.
	r.Broadcast(&protocol.FileChanged{
		Header: protocol.NewHeader(protocol.MsgFileChanged, ""),
		Code:   r.Code(),
		Change: change,
	}, msg.DeviceID)

	if len(conflicts) > 0 {
		authors := append([]string{change.Author}, conflicts...)
		r.AddConflictEvent(change.Author, change.Path)
		r.Broadcast(&protocol.ConflictWarning{
			Header:  protocol.NewHeader(protocol.MsgConflictWarning, ""),
			Code:    r.Code(),
			File:    change.Path,
			Authors: authors,
			Message: fmt.Sprintf("%d members are editing %s", len(authors), change.Path),
		}, "")
	}

	s.notifier.Fire(r.Webhook(), protocol.WebhookFileChange, r.Code(), map[string]any{
		"path":   change.Path,
		"author": change.Author,
	})
	if len(conflicts) > 0 {
		s.notifier.Fire(r.Webhook(), protocol.WebhookConflict, r.Code(), map[string]any{
			"path":    change.Path,
			"authors": append([]string{change.Author}, conflicts...),
		})
	}
}

func (s *Server) handleDeclareWorking(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.DeclareWorking](data)
	if err != nil {
		return
	}
	if len(msg.Files) > protocol.MaxWorkingFiles {
		s.sendError(conn, fmt.Sprintf("Too many files (max %d)", protocol.MaxWorkingFiles))
		return
	}
	for _, f := range msg.Files {
		if len(f) > protocol.MaxPathLen {
			s.sendError(conn, fmt.Sprintf("Path too long (max %d)", protocol.MaxPathLen))
			return
		}
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}

	conflicts := r.UpdateWorkingFiles(msg.DeviceID, msg.Name, msg.Files)

	if updated, ok := r.Member(msg.DeviceID); ok {
		r.Broadcast(&protocol.MemberUpdated{
			Header: protocol.NewHeader(protocol.MsgMemberUpdated, ""),
			Code:   r.Code(),
			Member: updated,
		}, "")
	}

	for _, c := range conflicts {
		authors := append([]string{msg.Name}, c.Others...)
		r.Broadcast(&protocol.ConflictWarning{
			Header:  protocol.NewHeader(protocol.MsgConflictWarning, ""),
			Code:    r.Code(),
			File:    c.File,
			Authors: authors,
			Message: fmt.Sprintf("%d members are editing %s", len(authors), c.File),
		}, "")
	}
}

func (s *Server) handleChatMessage(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.ChatMessage](data)
	if err != nil {
		return
	}
	msg.Content = sanitize.Text(msg.Content)
	if len(msg.Content) < 1 || len(msg.Content) > protocol.MaxChatLen {
		s.sendError(conn, fmt.Sprintf("Message must be 1-%d characters", protocol.MaxChatLen))
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}

	r.AddChat(msg.Name, msg.Content)
	r.Broadcast(&protocol.ChatReceived{
		Header:  protocol.NewHeader(protocol.MsgChatReceived, msg.DeviceID),
		Code:    r.Code(),
		Name:    msg.Name,
		Content: msg.Content,
	}, msg.DeviceID)
	s.notifier.Fire(r.Webhook(), protocol.WebhookChat, r.Code(), map[string]any{
		"name":    msg.Name,
		"content": msg.Content,
	})
}

func (s *Server) handleRequestStatus(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.RequestStatus](data)
	if err != nil {
		s.sendError(conn, "Invalid message format")
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		s.sendError(conn, "Room not found")
		return
	}
	s.send(conn, &protocol.RoomStatus{
		Header: protocol.NewHeader(protocol.MsgRoomStatus, ""),
		Room:   r.ToRoomInfo(),
	})
}

func (s *Server) handleDeclareTyping(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.DeclareTyping](data)
	if err != nil {
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}
	r.SetTyping(msg.DeviceID, msg.File)
	r.Broadcast(&protocol.TypingIndicator{
		Header:         protocol.NewHeader(protocol.MsgTypingIndicator, ""),
		Code:           r.Code(),
		MemberDeviceID: msg.DeviceID,
		Name:           msg.Name,
		File:           msg.File,
	}, msg.DeviceID)
}

func (s *Server) handleLockFile(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.LockFile](data)
	if err != nil {
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}
	res := r.LockFile(msg.DeviceID, msg.Name, msg.File)
	if !res.Success {
		s.send(conn, &protocol.LockError{
			Header:   protocol.NewHeader(protocol.MsgLockError, ""),
			Code:     r.Code(),
			File:     msg.File,
			Error:    res.Error,
			LockedBy: res.LockedBy,
		})
		return
	}
	r.Broadcast(&protocol.FileLocked{
		Header:         protocol.NewHeader(protocol.MsgFileLocked, ""),
		Code:           r.Code(),
		File:           msg.File,
		LockedBy:       msg.Name,
		MemberDeviceID: msg.DeviceID,
	}, "")
}

func (s *Server) handleUnlockFile(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.UnlockFile](data)
	if err != nil {
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}
	res := r.UnlockFile(msg.DeviceID, msg.Name, msg.File)
	if !res.Success {
		s.sendError(conn, res.Error)
		return
	}
	r.Broadcast(&protocol.FileUnlocked{
		Header:     protocol.NewHeader(protocol.MsgFileUnlocked, ""),
		Code:       r.Code(),
		File:       msg.File,
		UnlockedBy: msg.Name,
	}, "")
}

func (s *Server) handleUpdateCursor(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.UpdateCursor](data)
	if err != nil {
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}
	r.UpdateCursor(msg.DeviceID, msg.Cursor)
	r.Broadcast(&protocol.CursorUpdated{
		Header:         protocol.NewHeader(protocol.MsgCursorUpdated, ""),
		Code:           r.Code(),
		MemberDeviceID: msg.DeviceID,
		Name:           msg.Name,
		Cursor:         msg.Cursor,
	}, msg.DeviceID)
}

func (s *Server) handleShareTerminal(sess *session, conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.ShareTerminal](data)
	if err != nil {
		return
	}
	if len(msg.Output) > protocol.MaxTerminalOutput {
		s.sendError(conn, fmt.Sprintf("Terminal output too large (max %d)", protocol.MaxTerminalOutput))
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		return
	}
	r.Broadcast(&protocol.TerminalShared{
		Header:         protocol.NewHeader(protocol.MsgTerminalShared, ""),
		Code:           r.Code(),
		MemberDeviceID: msg.DeviceID,
		Name:           msg.Name,
		Output:         msg.Output,
	}, msg.DeviceID)
}

func (s *Server) handleListRooms(conn *room.Conn) {
	rooms := s.registry.PublicRooms()
	summaries := make([]protocol.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		summaries = append(summaries, r.ToRoomSummary())
	}
	s.send(conn, &protocol.RoomList{
		Header: protocol.NewHeader(protocol.MsgRoomList, ""),
		Rooms:  summaries,
	})
}

func (s *Server) handleGetTimeline(conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.GetTimeline](data)
	if err != nil {
		s.sendError(conn, "Invalid message format")
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		s.sendError(conn, "Room not found")
		return
	}
	limit := msg.Limit
	if limit <= 0 {
		limit = 50
	}
	s.send(conn, &protocol.Timeline{
		Header: protocol.NewHeader(protocol.MsgTimeline, ""),
		Code:   r.Code(),
		Events: r.TimelineTail(limit),
	})
}

func (s *Server) handleSetWebhook(conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.SetWebhook](data)
	if err != nil {
		s.sendError(conn, "Invalid message format")
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		s.sendError(conn, "Room not found")
		return
	}
	if msg.URL == "" {
		r.SetWebhook(nil)
		return
	}
	events := msg.Events
	if len(events) == 0 {
		events = []string{protocol.WebhookAll}
	}
	r.SetWebhook(&protocol.WebhookConfig{URL: msg.URL, Events: events})
}

func (s *Server) handleSetRoomVisibility(conn *room.Conn, data []byte) {
	msg, err := protocol.DecodeAs[protocol.SetRoomVisibility](data)
	if err != nil {
		s.sendError(conn, "Invalid message format")
		return
	}
	r := s.registry.Get(msg.Code)
	if r == nil {
		s.sendError(conn, "Room not found")
		return
	}
	r.SetPublic(msg.IsPublic)
}
