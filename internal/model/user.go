package model

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User is the dashboard account. The chat core only flips IsOnline/LastSeenAt.
type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	Role        Role      `json:"role"`
	IsOnline    bool      `json:"isOnline"`
	LastSeenAt  time.Time `json:"lastSeen"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserPublic is embedded as "sender" in message events.
type UserPublic struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	IsOnline    bool      `json:"isOnline"`
	LastSeenAt  time.Time `json:"lastSeen"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		IsOnline:    u.IsOnline,
		LastSeenAt:  u.LastSeenAt,
	}
}
