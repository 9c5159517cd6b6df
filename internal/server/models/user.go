// Package models holds the persistent records of the server.
package models

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the credential record. Balance is kept in cents and never goes
// negative. MFASecret without MFAEnabled means enrollment is in progress.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	FailedAttempts      int
	LockedUntil         *time.Time
	PasswordLastChanged time.Time
	MFASecret           *string
	MFAEnabled          bool
	BalanceCents        int64
	Role                Role
	ResetTokenHash      *string
	ResetTokenExpires   *time.Time
	CreatedAt           time.Time
}

// IsLocked reports whether the lockout window is still open at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

type PasswordHistoryRecord struct {
	ID           string
	UserID       string
	PasswordHash string
	CreatedAt    time.Time
}
