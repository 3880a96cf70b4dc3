package model

import (
	"time"

	"github.com/google/uuid"
)

// UserID uniquely identifies a user across the system
type UserID string

// User is an identity record owned by the identity subsystem.
// Lazy users have an empty PasswordHash until they are converted.
type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash,omitempty"` // bcrypt hash
	Email        string    `json:"email,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPassword reports whether the user has credential material set
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// LazyMarker records that a user is lazy.
// Its existence is the only source of truth for laziness.
type LazyMarker struct {
	UserID    UserID    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserID generates a fresh random user ID
func NewUserID() UserID {
	return UserID("u_" + uuid.NewString())
}
