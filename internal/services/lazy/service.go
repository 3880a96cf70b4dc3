package lazy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mcoot/lazysignup-go/internal/dependencies/clock"
	"github.com/mcoot/lazysignup-go/internal/dependencies/random"
	"github.com/mcoot/lazysignup-go/internal/metrics"
	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/storage"
)

// UsernameLength is the length of generated lazy usernames
const UsernameLength = 30

// CredentialUpdate is a validated change bound to one specific user,
// applied during conversion.
type CredentialUpdate interface {
	// UserID is the user the update was validated against
	UserID() model.UserID
	// Apply writes the new credential and profile values onto user
	Apply(user *model.User) error
}

// Service creates lazy users and converts them into real ones
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a new lazy user Service
func New(storage storage.Storage, clock clock.Clock, random random.Random, m *metrics.Metrics, logger *slog.Logger) *Service {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Service{
		storage: storage,
		clock:   clock,
		random:  random,
		metrics: m,
		logger:  logger,
	}
}

// NewLazyUsername generates a random username for a lazy user
func (s *Service) NewLazyUsername() string {
	return s.random.String(UsernameLength, random.Hex)
}

// CreateLazyUser creates a user with no credentials and marks it lazy.
// Both writes happen in one transaction: if marking fails the user is not
// created either.
func (s *Service) CreateLazyUser(ctx context.Context, username string) (*model.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, model.ErrInvalidUsername
	}

	now := s.clock.Now()
	user := &model.User{
		ID:        model.NewUserID(),
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.storage.RunInTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return tx.MarkLazy(ctx, user.ID, now)
	})
	if err != nil {
		s.metrics.IncrementLazyCreateFailed()
		s.logger.Warn("failed to create lazy user",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.IncrementLazyCreated()
	s.logger.Info("lazy user created",
		slog.String("user_id", string(user.ID)),
	)
	return user, nil
}

// IsLazy reports whether the user currently has a lazy marker
func (s *Service) IsLazy(ctx context.Context, id model.UserID) (bool, error) {
	return s.storage.IsLazy(ctx, id)
}

// Convert applies update to a lazy user and removes its marker.
// Returns model.ErrNotLazy, with nothing persisted, if the user is not lazy
// or another conversion of the same user wins the race.
func (s *Service) Convert(ctx context.Context, user *model.User, update CredentialUpdate) (*model.User, error) {
	if user == nil || update == nil {
		return nil, model.ErrUserNotFound
	}
	if update.UserID() != user.ID {
		return nil, model.ErrUpdateMismatch
	}

	var converted *model.User
	err := s.storage.RunInTx(ctx, func(tx storage.Tx) error {
		lazy, err := tx.IsLazy(ctx, user.ID)
		if err != nil {
			return err
		}
		if !lazy {
			return model.ErrNotLazy
		}

		current, err := tx.GetUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := update.Apply(current); err != nil {
			return err
		}
		current.ID = user.ID
		current.UpdatedAt = s.clock.Now()

		if err := tx.SaveUser(ctx, current); err != nil {
			return err
		}

		removed, err := tx.Unmark(ctx, user.ID)
		if err != nil {
			return err
		}
		if !removed {
			return model.ErrNotLazy
		}

		converted = current
		return nil
	})

	switch {
	case err == nil:
		s.metrics.ObserveConversion(metrics.ResultConverted)
		s.logger.Info("lazy user converted",
			slog.String("user_id", string(user.ID)),
			slog.String("username", converted.Username),
		)
		return converted, nil
	case errors.Is(err, model.ErrNotLazy):
		s.metrics.ObserveConversion(metrics.ResultNotLazy)
		return nil, err
	default:
		s.metrics.ObserveConversion(metrics.ResultFailed)
		s.logger.Warn("lazy user conversion failed",
			slog.String("user_id", string(user.ID)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
}

// StaleLazyUsers lists lazy users whose marker is older than olderThan
func (s *Service) StaleLazyUsers(ctx context.Context, olderThan time.Duration) ([]model.LazyMarker, error) {
	return s.storage.ListLazy(ctx, s.clock.Now().Add(-olderThan))
}

// DeleteIfLazy deletes the user and its marker if the user is still lazy.
// The check and the delete share one transaction, so a user converted after
// being listed as stale is kept. Returns false when nothing was deleted.
func (s *Service) DeleteIfLazy(ctx context.Context, id model.UserID) (bool, error) {
	deleted := false
	err := s.storage.RunInTx(ctx, func(tx storage.Tx) error {
		lazy, err := tx.IsLazy(ctx, id)
		if err != nil || !lazy {
			return err
		}
		if _, err := tx.Unmark(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteUser(ctx, id); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("stale lazy user deleted", slog.String("user_id", string(id)))
	}
	return deleted, nil
}
