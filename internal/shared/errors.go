package shared

import "errors"

// Sentinel errors shared by the dashboard's repositories and handlers.
var (
	// ErrNotFound marks a lookup whose record does not exist or is soft deleted.
	ErrNotFound = errors.New("powerdeck: record not found")
	// ErrInvalidCredentials covers every login failure so responses cannot
	// distinguish unknown accounts from wrong passwords.
	ErrInvalidCredentials = errors.New("powerdeck: invalid credentials")
	// ErrCSRFTokenMissing occurs when a mutating request carries no token.
	ErrCSRFTokenMissing = errors.New("powerdeck: csrf token missing")
	// ErrCSRFTokenMismatch occurs when the token does not match the session.
	ErrCSRFTokenMismatch = errors.New("powerdeck: csrf token mismatch")
)
