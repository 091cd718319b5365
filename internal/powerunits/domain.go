package powerunits

import (
	"errors"
	"time"
)

// Status is the operational state of a power unit.
type Status string

const (
	StatusOnline      Status = "ONLINE"
	StatusOffline     Status = "OFFLINE"
	StatusMaintenance Status = "MAINTENANCE"
)

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusMaintenance:
		return true
	}
	return false
}

// PowerUnit is a managed generation or distribution unit.
type PowerUnit struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Location   string     `json:"location"`
	CapacityKW float64    `json:"capacity_kw"`
	Status     Status     `json:"status"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CreateInput carries fields for registering a unit.
type CreateInput struct {
	Name       string  `json:"name" validate:"required,min=2,max=120"`
	Location   string  `json:"location" validate:"required,min=2,max=200"`
	CapacityKW float64 `json:"capacity_kw" validate:"gt=0"`
}

// UpdateInput carries fields for editing a unit.
type UpdateInput struct {
	Name       string  `json:"name" validate:"required,min=2,max=120"`
	Location   string  `json:"location" validate:"required,min=2,max=200"`
	CapacityKW float64 `json:"capacity_kw" validate:"gt=0"`
}

// StatusInput carries a status transition.
type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=ONLINE OFFLINE MAINTENANCE"`
}

// ErrUnknownStatus indicates a status outside the known set.
var ErrUnknownStatus = errors.New("powerunits: unknown status")
