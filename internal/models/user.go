package models

import (
	"time"
)

// User is the credential record the login protocol authenticates against.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string // "user", "admin"
	Status       string // "active", "disabled"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
