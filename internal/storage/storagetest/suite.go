// Package storagetest holds a conformance suite run against every storage backend.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/storage"
)

// Suite exercises the storage.Storage contract.
// Backends embed it and set NewStorage before suite.Run.
type Suite struct {
	suite.Suite

	// NewStorage returns a fresh, empty store for each test
	NewStorage func() storage.Storage

	Store storage.Storage
	Ctx   context.Context
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func (s *Suite) SetupTest() {
	s.Store = s.NewStorage()
	s.Ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	if s.Store != nil {
		_ = s.Store.Close()
	}
}

func (s *Suite) newUser(id, username string) *model.User {
	return &model.User{
		ID:          model.UserID(id),
		Username:    username,
		DisplayName: username,
		CreatedAt:   epoch,
		UpdatedAt:   epoch,
	}
}

func (s *Suite) createUser(id, username string) *model.User {
	user := s.newUser(id, username)
	s.Require().NoError(s.Store.CreateUser(s.Ctx, user))
	return user
}

// User tests

func (s *Suite) TestCreateAndGetUser() {
	user := s.createUser("u-1", "alice")

	got, err := s.Store.GetUser(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.Equal(user.Username, got.Username)
	s.Equal(user.DisplayName, got.DisplayName)
	s.Empty(got.PasswordHash)
}

func (s *Suite) TestGetUserByUsername() {
	s.createUser("u-1", "alice")

	got, err := s.Store.GetUserByUsername(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.UserID("u-1"), got.ID)
}

func (s *Suite) TestGetUserNotFound() {
	_, err := s.Store.GetUser(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrUserNotFound)

	_, err = s.Store.GetUserByUsername(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestCreateUserDuplicateUsername() {
	s.createUser("u-1", "alice")

	err := s.Store.CreateUser(s.Ctx, s.newUser("u-2", "alice"))
	s.ErrorIs(err, model.ErrUsernameTaken)

	_, err = s.Store.GetUser(s.Ctx, "u-2")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestSaveUserUpdatesFields() {
	user := s.createUser("u-1", "alice")

	user.Email = "alice@example.com"
	user.PasswordHash = "hash"
	s.Require().NoError(s.Store.SaveUser(s.Ctx, user))

	got, err := s.Store.GetUser(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.Equal("alice@example.com", got.Email)
	s.Equal("hash", got.PasswordHash)
}

func (s *Suite) TestSaveUserRenameMovesIndex() {
	user := s.createUser("u-1", "alice")

	user.Username = "alicia"
	s.Require().NoError(s.Store.SaveUser(s.Ctx, user))

	_, err := s.Store.GetUserByUsername(s.Ctx, "alice")
	s.ErrorIs(err, model.ErrUserNotFound)

	got, err := s.Store.GetUserByUsername(s.Ctx, "alicia")
	s.Require().NoError(err)
	s.Equal(model.UserID("u-1"), got.ID)
}

func (s *Suite) TestSaveUserRenameCollision() {
	s.createUser("u-1", "alice")
	bob := s.createUser("u-2", "bob")

	bob.Username = "alice"
	err := s.Store.SaveUser(s.Ctx, bob)
	s.ErrorIs(err, model.ErrUsernameTaken)

	got, err := s.Store.GetUser(s.Ctx, "u-2")
	s.Require().NoError(err)
	s.Equal("bob", got.Username)
}

func (s *Suite) TestSaveUserNotFound() {
	err := s.Store.SaveUser(s.Ctx, s.newUser("missing", "ghost"))
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestDeleteUserRemovesMarker() {
	s.createUser("u-1", "alice")
	s.Require().NoError(s.Store.MarkLazy(s.Ctx, "u-1", epoch))

	s.Require().NoError(s.Store.DeleteUser(s.Ctx, "u-1"))

	_, err := s.Store.GetUser(s.Ctx, "u-1")
	s.ErrorIs(err, model.ErrUserNotFound)

	lazy, err := s.Store.IsLazy(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.False(lazy)

	// Username is free again
	s.NoError(s.Store.CreateUser(s.Ctx, s.newUser("u-2", "alice")))
}

func (s *Suite) TestDeleteUserMissingIsNoop() {
	s.NoError(s.Store.DeleteUser(s.Ctx, "missing"))
}

// Marker tests

func (s *Suite) TestMarkLazy() {
	s.createUser("u-1", "alice")

	s.Require().NoError(s.Store.MarkLazy(s.Ctx, "u-1", epoch))

	lazy, err := s.Store.IsLazy(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.True(lazy)
}

func (s *Suite) TestMarkLazyTwiceFails() {
	s.createUser("u-1", "alice")
	s.Require().NoError(s.Store.MarkLazy(s.Ctx, "u-1", epoch))

	err := s.Store.MarkLazy(s.Ctx, "u-1", epoch.Add(time.Minute))
	s.ErrorIs(err, model.ErrDuplicateMarker)
}

func (s *Suite) TestMarkLazyUnknownUser() {
	err := s.Store.MarkLazy(s.Ctx, "missing", epoch)
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestUserWithoutMarkerIsNotLazy() {
	s.createUser("u-1", "alice")

	lazy, err := s.Store.IsLazy(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.False(lazy)
}

func (s *Suite) TestUnmark() {
	s.createUser("u-1", "alice")
	s.Require().NoError(s.Store.MarkLazy(s.Ctx, "u-1", epoch))

	removed, err := s.Store.Unmark(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.True(removed)

	lazy, err := s.Store.IsLazy(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.False(lazy)
}

func (s *Suite) TestUnmarkIsIdempotent() {
	s.createUser("u-1", "alice")

	removed, err := s.Store.Unmark(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.False(removed)

	removed, err = s.Store.Unmark(s.Ctx, "missing")
	s.Require().NoError(err)
	s.False(removed)
}

func (s *Suite) TestListLazyOldestFirst() {
	s.createUser("u-1", "alice")
	s.createUser("u-2", "bob")
	s.createUser("u-3", "carol")
	s.Require().NoError(s.Store.MarkLazy(s.Ctx, "u-2", epoch.Add(-2*time.Hour)))
	s.Require().NoError(s.Store.MarkLazy(s.Ctx, "u-1", epoch.Add(-3*time.Hour)))
	s.Require().NoError(s.Store.MarkLazy(s.Ctx, "u-3", epoch))

	markers, err := s.Store.ListLazy(s.Ctx, epoch.Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().Len(markers, 2)
	s.Equal(model.UserID("u-1"), markers[0].UserID)
	s.Equal(model.UserID("u-2"), markers[1].UserID)
}

// Transaction tests

func (s *Suite) TestRunInTxCommits() {
	err := s.Store.RunInTx(s.Ctx, func(tx storage.Tx) error {
		if err := tx.CreateUser(s.Ctx, s.newUser("u-1", "alice")); err != nil {
			return err
		}
		return tx.MarkLazy(s.Ctx, "u-1", epoch)
	})
	s.Require().NoError(err)

	lazy, err := s.Store.IsLazy(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.True(lazy)
}

func (s *Suite) TestRunInTxReadsOwnWrites() {
	err := s.Store.RunInTx(s.Ctx, func(tx storage.Tx) error {
		if err := tx.CreateUser(s.Ctx, s.newUser("u-1", "alice")); err != nil {
			return err
		}
		got, err := tx.GetUserByUsername(s.Ctx, "alice")
		if err != nil {
			return err
		}
		s.Equal(model.UserID("u-1"), got.ID)

		if err := tx.MarkLazy(s.Ctx, "u-1", epoch); err != nil {
			return err
		}
		lazy, err := tx.IsLazy(s.Ctx, "u-1")
		if err != nil {
			return err
		}
		s.True(lazy)
		return nil
	})
	s.Require().NoError(err)
}

func (s *Suite) TestRunInTxRollsBackOnError() {
	boom := errors.New("boom")

	err := s.Store.RunInTx(s.Ctx, func(tx storage.Tx) error {
		if err := tx.CreateUser(s.Ctx, s.newUser("u-1", "alice")); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.Store.GetUser(s.Ctx, "u-1")
	s.ErrorIs(err, model.ErrUserNotFound)
	_, err = s.Store.GetUserByUsername(s.Ctx, "alice")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestRunInTxRollsBackUnmark() {
	user := s.createUser("u-1", "alice")
	s.Require().NoError(s.Store.MarkLazy(s.Ctx, "u-1", epoch))
	boom := errors.New("boom")

	err := s.Store.RunInTx(s.Ctx, func(tx storage.Tx) error {
		user.PasswordHash = "hash"
		if err := tx.SaveUser(s.Ctx, user); err != nil {
			return err
		}
		if _, err := tx.Unmark(s.Ctx, "u-1"); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	lazy, err := s.Store.IsLazy(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.True(lazy)

	got, err := s.Store.GetUser(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.Empty(got.PasswordHash)
}

func (s *Suite) TestConcurrentUnmarkOnlyOneWins() {
	s.createUser("u-1", "alice")
	s.Require().NoError(s.Store.MarkLazy(s.Ctx, "u-1", epoch))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var removed bool
			err := s.Store.RunInTx(s.Ctx, func(tx storage.Tx) error {
				var err error
				removed, err = tx.Unmark(s.Ctx, "u-1")
				return err
			})
			if err == nil && removed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
}
