package models

import (
	"time"
)

// Account status values
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
	UserStatusDisabled  = "disabled"
)

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	TokenKey          string // Per-user secret for composite token signing
	Role              string // "user" or "admin"
	Status            string // "active", "suspended", "disabled"
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
