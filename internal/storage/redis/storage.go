package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Transactions use WATCH/MULTI/EXEC: every key read inside a transaction
// is watched and writes are queued until the callback returns.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.MaxTxAttempts <= 0 {
		cfg.MaxTxAttempts = DefaultConfig().MaxTxAttempts
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// RunInTx runs fn under optimistic locking. When another client modifies a
// watched key before EXEC, fn is evaluated again against the new state.
func (s *Storage) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	for attempt := 0; attempt < s.cfg.MaxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := newTx(rtx, func(ctx context.Context, keys ...string) error {
				return rtx.Watch(ctx, keys...).Err()
			})
			if err := fn(t); err != nil {
				return err
			}
			return t.commit(ctx, rtx)
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return model.ErrConflict
}

func (s *Storage) reader() *tx {
	return newTx(s.client, nil)
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
	return s.reader().GetUser(ctx, id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.reader().GetUserByUsername(ctx, username)
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
	return s.reader().IsLazy(ctx, id)
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
	return s.reader().ListLazy(ctx, createdBefore)
}

// reader is the subset of commands shared by *redis.Client and *redis.Tx
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
}

type watchFunc func(ctx context.Context, keys ...string) error

// tx reads through to Redis and buffers writes. Pending writes are kept in
// overlay maps so later reads in the same transaction observe them; a nil
// entry records a deletion.
type tx struct {
	r     reader
	watch watchFunc
	ops   []func(ctx context.Context, pipe redis.Pipeliner)

	users     map[model.UserID]*model.User
	usernames map[string]*model.UserID
	markers   map[model.UserID]*model.LazyMarker
}

func newTx(r reader, watch watchFunc) *tx {
	return &tx{
		r:         r,
		watch:     watch,
		users:     make(map[model.UserID]*model.User),
		usernames: make(map[string]*model.UserID),
		markers:   make(map[model.UserID]*model.LazyMarker),
	}
}

func (t *tx) watchKeys(ctx context.Context, keys ...string) error {
	if t.watch == nil {
		return nil
	}
	return t.watch(ctx, keys...)
}

func (t *tx) queue(op func(ctx context.Context, pipe redis.Pipeliner)) {
	t.ops = append(t.ops, op)
}

func (t *tx) commit(ctx context.Context, rtx *redis.Tx) error {
	if len(t.ops) == 0 {
		return nil
	}
	_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range t.ops {
			op(ctx, pipe)
		}
		return nil
	})
	return err
}

func (t *tx) CreateUser(ctx context.Context, user *model.User) error {
	if _, err := t.lookupUsername(ctx, user.Username); err == nil {
		return model.ErrUsernameTaken
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return err
	}

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	stored := *user
	id := user.ID
	t.users[id] = &stored
	t.usernames[user.Username] = &id

	t.queue(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, userKey(id), data, 0)
		pipe.Set(ctx, usernameIndexKey(stored.Username), string(id), 0)
	})
	return nil
}

func (t *tx) SaveUser(ctx context.Context, user *model.User) error {
	existing, err := t.GetUser(ctx, user.ID)
	if err != nil {
		return err
	}

	if existing.Username != user.Username {
		if _, err := t.lookupUsername(ctx, user.Username); err == nil {
			return model.ErrUsernameTaken
		} else if !errors.Is(err, model.ErrUserNotFound) {
			return err
		}
	}

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	stored := *user
	id := user.ID
	oldUsername := existing.Username
	t.users[id] = &stored

	if oldUsername != stored.Username {
		t.usernames[oldUsername] = nil
		t.usernames[stored.Username] = &id
		t.queue(func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.Del(ctx, usernameIndexKey(oldUsername))
			pipe.Set(ctx, usernameIndexKey(stored.Username), string(id), 0)
		})
	}

	t.queue(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, userKey(id), data, 0)
	})
	return nil
}

func (t *tx) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	if user, ok := t.users[id]; ok {
		if user == nil {
			return nil, model.ErrUserNotFound
		}
		result := *user
		return &result, nil
	}

	key := userKey(id)
	if err := t.watchKeys(ctx, key); err != nil {
		return nil, err
	}

	data, err := t.r.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrUserNotFound
		}
		return nil, err
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &user, nil
}

func (t *tx) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	id, err := t.lookupUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return t.GetUser(ctx, id)
}

// lookupUsername resolves the username index, watching the index key
func (t *tx) lookupUsername(ctx context.Context, username string) (model.UserID, error) {
	if id, ok := t.usernames[username]; ok {
		if id == nil {
			return "", model.ErrUserNotFound
		}
		return *id, nil
	}

	key := usernameIndexKey(username)
	if err := t.watchKeys(ctx, key); err != nil {
		return "", err
	}

	idStr, err := t.r.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrUserNotFound
		}
		return "", err
	}
	return model.UserID(idStr), nil
}

func (t *tx) DeleteUser(ctx context.Context, id model.UserID) error {
	existing, err := t.GetUser(ctx, id)
	if errors.Is(err, model.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	username := existing.Username
	t.users[id] = nil
	t.usernames[username] = nil
	t.markers[id] = nil

	t.queue(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, userKey(id), usernameIndexKey(username), markerKey(id))
		pipe.ZRem(ctx, lazyIndexKey(), string(id))
	})
	return nil
}

func (t *tx) MarkLazy(ctx context.Context, id model.UserID, at time.Time) error {
	if _, err := t.GetUser(ctx, id); err != nil {
		return err
	}

	lazy, err := t.IsLazy(ctx, id)
	if err != nil {
		return err
	}
	if lazy {
		return model.ErrDuplicateMarker
	}

	marker := model.LazyMarker{UserID: id, CreatedAt: at}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	t.markers[id] = &marker

	t.queue(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, markerKey(id), data, 0)
		pipe.ZAdd(ctx, lazyIndexKey(), redis.Z{
			Score:  float64(marker.CreatedAt.UnixMilli()),
			Member: string(id),
		})
	})
	return nil
}

func (t *tx) IsLazy(ctx context.Context, id model.UserID) (bool, error) {
	if marker, ok := t.markers[id]; ok {
		return marker != nil, nil
	}

	key := markerKey(id)
	if err := t.watchKeys(ctx, key); err != nil {
		return false, err
	}

	n, err := t.r.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *tx) Unmark(ctx context.Context, id model.UserID) (bool, error) {
	lazy, err := t.IsLazy(ctx, id)
	if err != nil || !lazy {
		return false, err
	}

	t.markers[id] = nil
	t.queue(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, markerKey(id))
		pipe.ZRem(ctx, lazyIndexKey(), string(id))
	})
	return true, nil
}

func (t *tx) ListLazy(ctx context.Context, createdBefore time.Time) ([]model.LazyMarker, error) {
	ids, err := t.r.ZRangeByScore(ctx, lazyIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(createdBefore.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	var markers []model.LazyMarker
	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = markerKey(model.UserID(id))
		}

		values, err := t.r.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}

		for _, val := range values {
			str, ok := val.(string)
			if !ok {
				continue // Marker removed since the index was read
			}
			var marker model.LazyMarker
			if err := json.Unmarshal([]byte(str), &marker); err != nil {
				continue // Skip invalid data
			}
			if _, pending := t.markers[marker.UserID]; pending {
				continue
			}
			markers = append(markers, marker)
		}
	}

	for _, marker := range t.markers {
		if marker != nil {
			markers = append(markers, *marker)
		}
	}

	result := markers[:0]
	for _, m := range markers {
		if m.CreatedAt.Before(createdBefore) {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
