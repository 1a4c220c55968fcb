package protocol

// Cursor is a member's editor cursor position within a file.
type Cursor struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   *int   `json:"endLine,omitempty"`
	EndColumn *int   `json:"endColumn,omitempty"`
}

// MemberInfo describes one connected room member.
type MemberInfo struct {
	DeviceID  string   `json:"deviceId"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	WorkingOn []string `json:"workingOn"`
	JoinedAt  int64    `json:"joinedAt"`
	LastSeen  int64    `json:"lastSeen"`
	Branch    string   `json:"branch,omitempty"`
	TypingIn  *string  `json:"typingIn,omitempty"`
	Cursor    *Cursor  `json:"cursor,omitempty"`
}

// FileChange is one observed file modification.
type FileChange struct {
	Path         string `json:"path"`
	Type         string `json:"type"` // add | change | unlink
	Author       string `json:"author"`
	DeviceID     string `json:"deviceId"`
	Timestamp    int64  `json:"timestamp"`
	Diff         string `json:"diff,omitempty"`
	LinesAdded   int    `json:"linesAdded"`
	LinesRemoved int    `json:"linesRemoved"`
	SizeBefore   *int64 `json:"sizeBefore,omitempty"`
	SizeAfter    *int64 `json:"sizeAfter,omitempty"`
}

// LockInfo is one advisory file lock.
type LockInfo struct {
	File     string `json:"file"`
	LockedBy string `json:"lockedBy"`
	DeviceID string `json:"deviceId"`
	LockedAt int64  `json:"lockedAt"`
}

// TimelineEvent is one entry in a room's bounded event timeline.
type TimelineEvent struct {
	ID     int64  `json:"id"`
	TS     int64  `json:"ts"`
	Type   string `json:"type"`
	Actor  string `json:"actor"`
	Detail string `json:"detail,omitempty"`
}

// WebhookConfig is a room's optional webhook subscription.
type WebhookConfig struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// RoomInfo is the full snapshot of a room sent to clients. The
// recentChanges and timeline slices are truncated to the last 20.
type RoomInfo struct {
	Code           string          `json:"code"`
	CreatedAt      int64           `json:"createdAt"`
	CreatedBy      string          `json:"createdBy"`
	HasPassword    bool            `json:"hasPassword"`
	IsPublic       bool            `json:"isPublic"`
	ExpiresInHours int             `json:"expiresInHours"`
	LastActivity   int64           `json:"lastActivity"`
	Members        []MemberInfo    `json:"members"`
	Locks          []LockInfo      `json:"locks"`
	RecentChanges  []FileChange    `json:"recentChanges"`
	Timeline       []TimelineEvent `json:"timeline"`
}

// RoomSummary is the abbreviated projection used by room discovery.
type RoomSummary struct {
	Code         string `json:"code"`
	CreatedBy    string `json:"createdBy"`
	HasPassword  bool   `json:"hasPassword"`
	MemberCount  int    `json:"memberCount"`
	CreatedAt    int64  `json:"createdAt"`
	LastActivity int64  `json:"lastActivity"`
}
