package model

import "time"

// Session is a login session as written by the dashboard's session middleware
// (express-session layout: {"cookie": {...}, "userId": 1} or {"passport": {"user": 1}}).
type Session struct {
	Cookie   SessionCookie    `json:"cookie"`
	UserID   *int64           `json:"userId,omitempty"`
	Passport *SessionPassport `json:"passport,omitempty"`
}

type SessionCookie struct {
	Expires *time.Time `json:"expires,omitempty"`
}

type SessionPassport struct {
	User *int64 `json:"user,omitempty"`
}

// AuthenticatedUserID returns the user the session belongs to, if any.
func (s *Session) AuthenticatedUserID() (int64, bool) {
	if s == nil {
		return 0, false
	}
	if s.UserID != nil && *s.UserID > 0 {
		return *s.UserID, true
	}
	if s.Passport != nil && s.Passport.User != nil && *s.Passport.User > 0 {
		return *s.Passport.User, true
	}
	return 0, false
}

// Expired reports whether the cookie expiry recorded in the session has passed.
func (s *Session) Expired(now time.Time) bool {
	return s.Cookie.Expires != nil && !s.Cookie.Expires.After(now)
}
