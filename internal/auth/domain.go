package auth

import "time"

// User represents an account record used for authentication.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         string
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
