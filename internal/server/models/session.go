package models

import "time"

// Session is the server-side, revocable record behind a bearer envelope.
// Rows are never deleted; Revoked is a tombstone.
type Session struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	CreatedAt  time.Time
	LastActive time.Time
	IP         string
	UserAgent  string
	DeviceName string
}

// Active reports whether the session is usable at now.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}

// ClientMeta is captured at issuance.
type ClientMeta struct {
	IP        string
	UserAgent string
}
