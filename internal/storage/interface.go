package storage

import (
	"context"
	"time"

	"github.com/mcoot/lazysignup-go/internal/model"
)

// Users is the identity subsystem's persistence contract
type Users interface {
	// CreateUser inserts a new user. Returns model.ErrUsernameTaken if the
	// username is already in use.
	CreateUser(ctx context.Context, user *model.User) error

	// SaveUser persists changes to an existing user. Returns
	// model.ErrUserNotFound if the user does not exist and
	// model.ErrUsernameTaken if a rename collides with another user.
	SaveUser(ctx context.Context, user *model.User) error

	GetUser(ctx context.Context, id model.UserID) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// DeleteUser removes the user and any lazy marker referencing it
	DeleteUser(ctx context.Context, id model.UserID) error
}

// Markers is the lazy identity store
type Markers interface {
	// MarkLazy records the user as lazy. Returns model.ErrDuplicateMarker if
	// a marker already exists for the user.
	MarkLazy(ctx context.Context, id model.UserID, at time.Time) error

	// IsLazy reports whether a marker exists for the user
	IsLazy(ctx context.Context, id model.UserID) (bool, error)

	// Unmark deletes the user's marker. Deleting a missing marker is not an
	// error; the returned bool reports whether a marker was removed.
	Unmark(ctx context.Context, id model.UserID) (bool, error)

	// ListLazy returns markers created before the cutoff, oldest first
	ListLazy(ctx context.Context, createdBefore time.Time) ([]model.LazyMarker, error)
}

// Tx is the view of the store available inside a transaction
type Tx interface {
	Users
	Markers
}

// Storage defines the interface for data persistence.
// Calls made directly on Storage each run in their own implicit transaction.
type Storage interface {
	Tx

	// RunInTx runs fn atomically. If fn returns an error nothing it did is
	// persisted and the error is returned unchanged.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
