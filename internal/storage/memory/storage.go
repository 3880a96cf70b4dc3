package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu    sync.RWMutex
	state *state
}

// state holds every table so a transaction can work on a copy of it
type state struct {
	users         map[model.UserID]*model.User
	usernameIndex map[string]model.UserID
	markers       map[model.UserID]model.LazyMarker
}

func (st *state) clone() *state {
	return &state{
		users:         maps.Clone(st.users),
		usernameIndex: maps.Clone(st.usernameIndex),
		markers:       maps.Clone(st.markers),
	}
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		state: &state{
			users:         make(map[model.UserID]*model.User),
			usernameIndex: make(map[string]model.UserID),
			markers:       make(map[model.UserID]model.LazyMarker),
		},
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// RunInTx holds the write lock for the duration of fn and only publishes
// its changes if fn succeeds.
func (s *Storage) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&tx{st: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// Close is a no-op for the in-memory store
func (s *Storage) Close() error {
	return nil
}

func (s *Storage) read() *tx {
	return &tx{st: s.state}
}

// User operations

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	return s.RunInTx(ctx, func(t storage.Tx) error {
		return t.CreateUser(ctx, user)
	})
}

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	return s.RunInTx(ctx, func(t storage.Tx) error {
		return t.SaveUser(ctx, user)
	})
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetUser(ctx, id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetUserByUsername(ctx, username)
}

func (s *Storage) DeleteUser(ctx context.Context, id model.UserID) error {
	return s.RunInTx(ctx, func(t storage.Tx) error {
		return t.DeleteUser(ctx, id)
	})
}

// Marker operations

func (s *Storage) MarkLazy(ctx context.Context, id model.UserID, at time.Time) error {
	return s.RunInTx(ctx, func(t storage.Tx) error {
		return t.MarkLazy(ctx, id, at)
	})
}

func (s *Storage) IsLazy(ctx context.Context, id model.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().IsLazy(ctx, id)
}

func (s *Storage) Unmark(ctx context.Context, id model.UserID) (bool, error) {
	var removed bool
	err := s.RunInTx(ctx, func(t storage.Tx) error {
		var err error
		removed, err = t.Unmark(ctx, id)
		return err
	})
	return removed, err
}

func (s *Storage) ListLazy(ctx context.Context, createdBefore time.Time) ([]model.LazyMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListLazy(ctx, createdBefore)
}

// tx operates on a state without locking; the caller holds the lock
type tx struct {
	st *state
}

func (t *tx) CreateUser(ctx context.Context, user *model.User) error {
	if _, ok := t.st.usernameIndex[user.Username]; ok {
		return model.ErrUsernameTaken
	}
	stored := *user
	t.st.users[user.ID] = &stored
	t.st.usernameIndex[user.Username] = user.ID
	return nil
}

func (t *tx) SaveUser(ctx context.Context, user *model.User) error {
	existing, ok := t.st.users[user.ID]
	if !ok {
		return model.ErrUserNotFound
	}
	if existing.Username != user.Username {
		if _, taken := t.st.usernameIndex[user.Username]; taken {
			return model.ErrUsernameTaken
		}
		delete(t.st.usernameIndex, existing.Username)
		t.st.usernameIndex[user.Username] = user.ID
	}
	stored := *user
	t.st.users[user.ID] = &stored
	return nil
}

func (t *tx) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	user, ok := t.st.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	result := *user
	return &result, nil
}

func (t *tx) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	id, ok := t.st.usernameIndex[username]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return t.GetUser(ctx, id)
}

func (t *tx) DeleteUser(ctx context.Context, id model.UserID) error {
	user, ok := t.st.users[id]
	if !ok {
		return nil
	}
	delete(t.st.usernameIndex, user.Username)
	delete(t.st.users, id)
	delete(t.st.markers, id)
	return nil
}

func (t *tx) MarkLazy(ctx context.Context, id model.UserID, at time.Time) error {
	if _, ok := t.st.users[id]; !ok {
		return model.ErrUserNotFound
	}
	if _, ok := t.st.markers[id]; ok {
		return model.ErrDuplicateMarker
	}
	t.st.markers[id] = model.LazyMarker{UserID: id, CreatedAt: at}
	return nil
}

func (t *tx) IsLazy(ctx context.Context, id model.UserID) (bool, error) {
	_, ok := t.st.markers[id]
	return ok, nil
}

func (t *tx) Unmark(ctx context.Context, id model.UserID) (bool, error) {
	if _, ok := t.st.markers[id]; !ok {
		return false, nil
	}
	delete(t.st.markers, id)
	return true, nil
}

func (t *tx) ListLazy(ctx context.Context, createdBefore time.Time) ([]model.LazyMarker, error) {
	var markers []model.LazyMarker
	for _, m := range t.st.markers {
		if m.CreatedAt.Before(createdBefore) {
			markers = append(markers, m)
		}
	}
	sort.Slice(markers, func(i, j int) bool {
		return markers[i].CreatedAt.Before(markers[j].CreatedAt)
	})
	return markers, nil
}
