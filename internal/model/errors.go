package model

import "errors"

// Common errors used across the application
var (
	// User errors
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username already exists")
	ErrInvalidUsername = errors.New("invalid username")

	// Lazy user errors
	ErrDuplicateMarker = errors.New("user is already marked lazy")
	ErrNotLazy         = errors.New("user is not lazy")
	ErrUpdateMismatch  = errors.New("credential update is bound to a different user")

	// Storage errors
	ErrConflict = errors.New("concurrent modification")
)
