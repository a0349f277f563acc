package model

import (
	"time"
)

// RoleAdmin is the only role a credential can carry.
const RoleAdmin = "admin"

// Challenge is a pending one-time code for a phone identity.
// Only the hash of the code is kept.
type Challenge struct {
	PhoneNumber string
	CodeHash    []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Expired reports whether the challenge is past its expiry at now.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// AdminClaims are the logical claims bound into an admin credential
type AdminClaims struct {
	Role        string
	PhoneNumber string
	IssuedAt    time.Time
}

// Category is a named directory of audio files
type Category struct {
	Name  string
	Files []File
}

// File is an audio file inside a category
type File struct {
	Name     string
	Category string
}
