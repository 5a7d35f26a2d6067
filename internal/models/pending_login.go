package models

import "time"

// PendingLogin bridges the password check and the emailed one-time code.
// Created on password success, consumed on code success or expiry. At most
// one pending login per user is live; a new initiation supersedes it.
type PendingLogin struct {
	UserID            string
	Email             string
	Code              string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int // bounds brute-forcing of the code itself
}

// IsExpired reports whether the code's validity window has passed.
func (p *PendingLogin) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
