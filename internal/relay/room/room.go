// Package room implements the relay's per-room state: members,
// advisory file locks, the event timeline, recent changes, and the
// best-effort broadcast fabric.
package room

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
	"github.com/CodeHiveAPP/codehive/internal/util/timefmt"
)

// member is a seated room member: wire-visible info plus the transport
// handle and the typing auto-clear timer.
type member struct {
	info        protocol.MemberInfo
	conn        *Conn
	typingTimer *time.Timer
}

// LockResult is the outcome of a lock or unlock attempt.
type LockResult struct {
	Success  bool
	Error    string
	LockedBy string
}

// WorkingConflict reports that a declared file is also declared by
// other members.
type WorkingConflict struct {
	File   string
	Others []string
}

// Room is one collaboration session. Every mutating operation runs
// under the room mutex; outbound writes happen outside it.
type Room struct {
	code      string
	createdAt int64
	createdBy string

	mu             sync.RWMutex
	password       string // plaintext, in-memory only
	passwordHash   string // sha256 hex; the only form ever persisted
	isPublic       bool
	expiresInHours int
	lastActivity   int64

	members       map[string]*member
	locks         map[string]protocol.LockInfo
	recentChanges []protocol.FileChange
	timeline      []protocol.TimelineEvent
	nextEventID   int64

	webhook *protocol.WebhookConfig
}

// New creates a room.
func New(code, createdBy, password string, isPublic bool, expiresInHours int) *Room {
	now := timefmt.NowMillis()
	r := &Room{
		code:           code,
		createdAt:      now,
		createdBy:      createdBy,
		password:       password,
		isPublic:       isPublic,
		expiresInHours: expiresInHours,
		lastActivity:   now,
		members:        make(map[string]*member),
		locks:          make(map[string]protocol.LockInfo),
		nextEventID:    1,
	}
	if password != "" {
		r.passwordHash = HashPassword(password)
	}
	return r
}

// Restore recreates room metadata from a persisted snapshot. Only the
// password hash survives a restart; membership is always cold.
func Restore(code string, createdAt int64, createdBy, passwordHash string, isPublic bool, expiresInHours int, lastActivity int64) *Room {
	return &Room{
		code:           code,
		createdAt:      createdAt,
		createdBy:      createdBy,
		passwordHash:   passwordHash,
		isPublic:       isPublic,
		expiresInHours: expiresInHours,
		lastActivity:   lastActivity,
		members:        make(map[string]*member),
		locks:          make(map[string]protocol.LockInfo),
		nextEventID:    1,
	}
}

// HashPassword returns the SHA-256 hex digest of a room password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Code returns the immutable room code.
func (r *Room) Code() string { return r.code }

// CreatedBy returns the display name of the room creator.
func (r *Room) CreatedBy() string { return r.createdBy }

// CreatedAt returns the creation timestamp in epoch millis.
func (r *Room) CreatedAt() int64 { return r.createdAt }

// HasPassword reports whether joining requires a password.
func (r *Room) HasPassword() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.password != "" || r.passwordHash != ""
}

// CheckPassword verifies a join password. Rooms recovered from disk
// hold only the hash, so the candidate is hashed for comparison.
func (r *Room) CheckPassword(candidate string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.password == "" && r.passwordHash == "" {
		return true
	}
	if r.password != "" {
		return candidate == r.password
	}
	return HashPassword(candidate) == r.passwordHash
}

// Password returns the in-memory plaintext password, or "" for rooms
// recovered from disk.
func (r *Room) Password() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.password
}

// PasswordHash returns the persisted-form password hash, or "".
func (r *Room) PasswordHash() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.passwordHash
}

// IsPublic reports whether the room is discoverable via list_rooms.
func (r *Room) IsPublic() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isPublic
}

// SetPublic toggles room discoverability.
func (r *Room) SetPublic(public bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isPublic = public
}

// ExpiresInHours returns the room's expiry horizon (0 = never).
func (r *Room) ExpiresInHours() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.expiresInHours
}

// LastActivity returns the last activity timestamp in epoch millis.
func (r *Room) LastActivity() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActivity
}

// IsExpired reports whether the room's last activity is older than its
// expiry horizon. Rooms with expiresInHours == 0 never expire.
func (r *Room) IsExpired() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.expiresInHours <= 0 {
		return false
	}
	age := timefmt.NowMillis() - r.lastActivity
	return age > int64(r.expiresInHours)*int64(time.Hour/time.Millisecond)
}

// IsEmpty reports whether no member is seated.
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members) == 0
}

// MemberCount returns the number of seated members.
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Member returns a copy of a member's info.
func (r *Room) Member(deviceID string) (protocol.MemberInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[deviceID]
	if !ok {
		return protocol.MemberInfo{}, false
	}
	return m.info, true
}

// SetWebhook assigns or clears the room webhook.
func (r *Room) SetWebhook(cfg *protocol.WebhookConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhook = cfg
}

// Webhook returns the room's webhook config, or nil.
func (r *Room) Webhook() *protocol.WebhookConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.webhook
}

// touch advances lastActivity. Callers hold the write lock.
func (r *Room) touch() {
	r.lastActivity = timefmt.NowMillis()
}

// appendEvent adds a timeline event. Callers hold the write lock.
// Timeline ids are strictly monotone within the room's lifetime.
func (r *Room) appendEvent(eventType, actor, detail string) {
	ev := protocol.TimelineEvent{
		ID:     r.nextEventID,
		TS:     timefmt.NowMillis(),
		Type:   eventType,
		Actor:  actor,
		Detail: detail,
	}
	r.nextEventID++
	r.timeline = append(r.timeline, ev)
	if len(r.timeline) > protocol.MaxTimelineEvents {
		r.timeline = r.timeline[len(r.timeline)-protocol.MaxTimelineEvents:]
	}
}

// AddMember seats a new member. Returns a human-readable reason on
// failure: room full, or the device already holds a seat.
func (r *Room) AddMember(deviceID, name string, conn *Conn, branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) >= protocol.MaxRoomMembers {
		return fmt.Errorf("room is full (max %d members)", protocol.MaxRoomMembers)
	}
	if _, exists := r.members[deviceID]; exists {
		return fmt.Errorf("device already connected to this room")
	}

	now := timefmt.NowMillis()
	r.members[deviceID] = &member{
		info: protocol.MemberInfo{
			DeviceID:  deviceID,
			Name:      name,
			Status:    protocol.StatusActive,
			WorkingOn: []string{},
			JoinedAt:  now,
			LastSeen:  now,
			Branch:    branch,
		},
		conn: conn,
	}
	r.appendEvent(protocol.EventJoin, name, "")
	r.touch()
	return nil
}

// RemoveMember unseats a member. In order: cancel the typing timer,
// release every lock the device holds, remove the seat, touch
// activity, append a leave event. Returns the removed member's info,
// or nil if the device held no seat.
func (r *Room) RemoveMember(deviceID string) *protocol.MemberInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[deviceID]
	if !ok {
		return nil
	}

	if m.typingTimer != nil {
		m.typingTimer.Stop()
		m.typingTimer = nil
	}
	for file, lock := range r.locks {
		if lock.DeviceID == deviceID {
			delete(r.locks, file)
		}
	}
	delete(r.members, deviceID)
	r.touch()
	r.appendEvent(protocol.EventLeave, m.info.Name, "")

	info := m.info
	return &info
}

// UpdateHeartbeat refreshes a member's liveness and presence. Returns
// true when the branch changed (a branch_change event was appended).
func (r *Room) UpdateHeartbeat(deviceID, status, branch string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[deviceID]
	if !ok {
		return false
	}
	m.info.LastSeen = timefmt.NowMillis()
	if status != "" {
		m.info.Status = status
	}
	branchChanged := false
	if branch != "" && branch != m.info.Branch {
		old := m.info.Branch
		m.info.Branch = branch
		branchChanged = true
		r.appendEvent(protocol.EventBranchChange, m.info.Name, fmt.Sprintf("%s -> %s", old, branch))
	}
	return branchChanged
}

// SetTyping sets the file the member is typing in and arms a fresh
// auto-clear timer. A nil file clears the indicator and cancels the
// timer. The timer only clears typingIn if it still equals the file
// it was armed for; the clear is not broadcast, peers age out stale
// indicators on their own.
func (r *Room) SetTyping(deviceID string, file *string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[deviceID]
	if !ok {
		return
	}
	if m.typingTimer != nil {
		m.typingTimer.Stop()
		m.typingTimer = nil
	}
	m.info.TypingIn = file
	if file == nil {
		return
	}
	armed := *file
	m.typingTimer = time.AfterFunc(protocol.TypingTimeout, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		cur, ok := r.members[deviceID]
		if !ok {
			return
		}
		if cur.info.TypingIn != nil && *cur.info.TypingIn == armed {
			cur.info.TypingIn = nil
		}
	})
}

// UpdateCursor applies a last-writer-wins cursor update.
func (r *Room) UpdateCursor(deviceID string, cursor *protocol.Cursor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[deviceID]; ok {
		m.info.Cursor = cursor
	}
}

// LockFile records an advisory lock. Re-acquisition by the holder is
// idempotent and appends no second timeline entry.
func (r *Room) LockFile(deviceID, name, file string) LockResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lock, held := r.locks[file]; held {
		if lock.DeviceID == deviceID {
			return LockResult{Success: true}
		}
		return LockResult{
			Success:  false,
			Error:    fmt.Sprintf("%s is locked by %s", file, lock.LockedBy),
			LockedBy: lock.LockedBy,
		}
	}
	if len(r.locks) >= protocol.MaxLocksPerRoom {
		return LockResult{Success: false, Error: fmt.Sprintf("lock limit reached (max %d)", protocol.MaxLocksPerRoom)}
	}

	r.locks[file] = protocol.LockInfo{
		File:     file,
		LockedBy: name,
		DeviceID: deviceID,
		LockedAt: timefmt.NowMillis(),
	}
	r.touch()
	r.appendEvent(protocol.EventLock, name, file)
	return LockResult{Success: true}
}

// UnlockFile releases an advisory lock. Unlocking a file that is not
// locked succeeds silently.
func (r *Room) UnlockFile(deviceID, name, file string) LockResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, held := r.locks[file]
	if !held {
		return LockResult{Success: true}
	}
	if lock.DeviceID != deviceID {
		return LockResult{Success: false, Error: fmt.Sprintf("%s is locked by %s", file, lock.LockedBy)}
	}

	delete(r.locks, file)
	r.touch()
	r.appendEvent(protocol.EventUnlock, name, file)
	return LockResult{Success: true}
}

// LockHolder returns (holderName, holderDeviceID, true) when the file
// is locked.
func (r *Room) LockHolder(file string) (string, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lock, held := r.locks[file]
	if !held {
		return "", "", false
	}
	return lock.LockedBy, lock.DeviceID, true
}

// RecordFileChange appends to the recent-changes ring, touches
// activity, appends a file_change timeline event, and returns the
// names of the other members whose working set includes the path,
// which is the conflict set for this change.
func (r *Room) RecordFileChange(change protocol.FileChange) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recentChanges = append(r.recentChanges, change)
	if len(r.recentChanges) > protocol.MaxRecentChanges {
		r.recentChanges = r.recentChanges[len(r.recentChanges)-protocol.MaxRecentChanges:]
	}
	r.touch()
	r.appendEvent(protocol.EventFileChange, change.Author, change.Path)

	var conflicts []string
	for deviceID, m := range r.members {
		if deviceID == change.DeviceID {
			continue
		}
		for _, f := range m.info.WorkingOn {
			if f == change.Path {
				conflicts = append(conflicts, m.info.Name)
				break
			}
		}
	}
	sort.Strings(conflicts)
	return conflicts
}

// AddChat appends a chat timeline event and touches activity.
func (r *Room) AddChat(name, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendEvent(protocol.EventChat, name, content)
	r.touch()
}

// AddConflictEvent appends a conflict timeline event.
func (r *Room) AddConflictEvent(actor, file string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendEvent(protocol.EventConflict, actor, file)
}

// UpdateWorkingFiles replaces a member's declared working set and
// refreshes lastSeen. For each file it returns the other members
// currently declaring it.
func (r *Room) UpdateWorkingFiles(deviceID, name string, files []string) []WorkingConflict {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[deviceID]
	if !ok {
		return nil
	}
	m.info.WorkingOn = files
	m.info.LastSeen = timefmt.NowMillis()

	var conflicts []WorkingConflict
	for _, file := range files {
		var others []string
		for otherID, other := range r.members {
			if otherID == deviceID {
				continue
			}
			for _, f := range other.info.WorkingOn {
				if f == file {
					others = append(others, other.info.Name)
					break
				}
			}
		}
		if len(others) > 0 {
			sort.Strings(others)
			conflicts = append(conflicts, WorkingConflict{File: file, Others: others})
		}
	}
	return conflicts
}

// CheckBranchDivergence inspects member branches. Diverged means more
// than one distinct non-empty branch is present.
func (r *Room) CheckBranchDivergence() (bool, string, map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	branches := make(map[string]string)
	distinct := make(map[string]bool)
	for _, m := range r.members {
		if m.info.Branch == "" {
			continue
		}
		branches[m.info.Name] = m.info.Branch
		distinct[m.info.Branch] = true
	}
	if len(distinct) <= 1 {
		return false, "", branches
	}

	names := make([]string, 0, len(distinct))
	for b := range distinct {
		names = append(names, b)
	}
	sort.Strings(names)
	msg := fmt.Sprintf("Room members are on diverging branches: %v", names)
	return true, msg, branches
}

// FindDeadClients returns the device ids whose lastSeen is older than
// the timeout.
func (r *Room) FindDeadClients(timeout time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := timefmt.NowMillis() - timeout.Milliseconds()
	var dead []string
	for deviceID, m := range r.members {
		if m.info.LastSeen < cutoff {
			dead = append(dead, deviceID)
		}
	}
	return dead
}

// SendTo delivers an envelope to one member. Closed or half-open
// transports are skipped silently.
func (r *Room) SendTo(deviceID string, v any) {
	r.mu.RLock()
	m, ok := r.members[deviceID]
	r.mu.RUnlock()

	if !ok || m.conn == nil || !m.conn.IsOpen() {
		return
	}
	if err := m.conn.Send(v); err != nil {
		slog.Debug("room send failed", "room", r.code, "device", deviceID, "error", err)
	}
}

// Broadcast delivers an envelope to every member except
// excludeDeviceID (empty string excludes nobody). Best-effort: the
// frame is encoded once, failed writes are dropped, and no transport
// I/O happens under the room lock.
func (r *Room) Broadcast(v any, excludeDeviceID string) {
	data, err := protocol.Encode(v)
	if err != nil {
		slog.Warn("broadcast encode failed", "room", r.code, "error", err)
		return
	}

	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.members))
	for deviceID, m := range r.members {
		if deviceID == excludeDeviceID || m.conn == nil {
			continue
		}
		conns = append(conns, m.conn)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if !c.IsOpen() {
			continue
		}
		if err := c.SendRaw(data); err != nil {
			slog.Debug("broadcast send failed", "room", r.code, "error", err)
		}
	}
}

// ToRoomInfo builds the full client-visible snapshot, with
// recentChanges and timeline truncated to the last 20.
func (r *Room) ToRoomInfo() protocol.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]protocol.MemberInfo, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m.info)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt != members[j].JoinedAt {
			return members[i].JoinedAt < members[j].JoinedAt
		}
		return members[i].DeviceID < members[j].DeviceID
	})

	locks := make([]protocol.LockInfo, 0, len(r.locks))
	for _, l := range r.locks {
		locks = append(locks, l)
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].File < locks[j].File })

	return protocol.RoomInfo{
		Code:           r.code,
		CreatedAt:      r.createdAt,
		CreatedBy:      r.createdBy,
		HasPassword:    r.password != "" || r.passwordHash != "",
		IsPublic:       r.isPublic,
		ExpiresInHours: r.expiresInHours,
		LastActivity:   r.lastActivity,
		Members:        members,
		Locks:          locks,
		RecentChanges:  tail(r.recentChanges, 20),
		Timeline:       tail(r.timeline, 20),
	}
}

// ToRoomSummary builds the discovery projection.
func (r *Room) ToRoomSummary() protocol.RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return protocol.RoomSummary{
		Code:         r.code,
		CreatedBy:    r.createdBy,
		HasPassword:  r.password != "" || r.passwordHash != "",
		MemberCount:  len(r.members),
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
	}
}

// TimelineTail returns the last limit timeline events.
func (r *Room) TimelineTail(limit int) []protocol.TimelineEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.timeline, limit)
}

func tail[T any](s []T, n int) []T {
	if n <= 0 || len(s) == 0 {
		return []T{}
	}
	if len(s) <= n {
		out := make([]T, len(s))
		copy(out, s)
		return out
	}
	out := make([]T, n)
	copy(out, s[len(s)-n:])
	return out
}
