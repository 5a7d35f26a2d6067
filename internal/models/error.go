package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternalServer = errors.New("internal server error")

	// Login protocol errors. ErrUnauthorized deliberately covers unknown
	// user, wrong password, and bad or expired verification codes alike so
	// responses never reveal which check failed.
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrCodeExhausted   = errors.New("verification attempts exhausted")
	ErrAccountDisabled = errors.New("account is disabled")
)
