package model

import "time"

type RoomKind string

const (
	RoomKindPublic  RoomKind = "public"
	RoomKindPrivate RoomKind = "private"
	RoomKindGroup   RoomKind = "group"
)

type ChatRoom struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Kind          RoomKind   `json:"type"`
	CreatedBy     int64      `json:"createdBy"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// IsPublic reports whether every user is implicitly a member.
func (r *ChatRoom) IsPublic() bool { return r.Kind == RoomKindPublic }

type ChatMember struct {
	RoomID     int64     `json:"roomId"`
	UserID     int64     `json:"userId"`
	IsAdmin    bool      `json:"isAdmin"`
	LastReadAt time.Time `json:"lastReadAt"`
	JoinedAt   time.Time `json:"joinedAt"`
}
