package models

import "time"

// Session is issued after full (password + code) login completion. The token
// is an opaque random value and the sole bearer credential; it is carried in
// the auth_token cookie.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the session is past its expiry at the given time.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
