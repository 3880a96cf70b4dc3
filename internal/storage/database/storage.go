package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/storage"
)

// Storage is a SQL implementation of the storage interface using GORM.
// The lazy_users table carries a unique index on user_id, so the
// database itself enforces one marker per user.
type Storage struct {
	db *gorm.DB
}

// New creates a Storage over an open, migrated database
func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// DB returns the underlying GORM DB
func (s *Storage) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunInTx runs fn inside a database transaction
func (s *Storage) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&tx{db: gtx})
	})
}

func (s *Storage) conn(ctx context.Context) *tx {
	return &tx{db: s.db.WithContext(ctx)}
}

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	return s.conn(ctx).CreateUser(ctx, user)
}

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	return s.conn(ctx).SaveUser(ctx, user)
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	return s.conn(ctx).GetUser(ctx, id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.conn(ctx).GetUserByUsername(ctx, username)
}

func (s *Storage) DeleteUser(ctx context.Context, id model.UserID) error {
	return s.RunInTx(ctx, func(t storage.Tx) error {
		return t.DeleteUser(ctx, id)
	})
}

func (s *Storage) MarkLazy(ctx context.Context, id model.UserID, at time.Time) error {
	return s.RunInTx(ctx, func(t storage.Tx) error {
		return t.MarkLazy(ctx, id, at)
	})
}

func (s *Storage) IsLazy(ctx context.Context, id model.UserID) (bool, error) {
	return s.conn(ctx).IsLazy(ctx, id)
}

func (s *Storage) Unmark(ctx context.Context, id model.UserID) (bool, error) {
	return s.conn(ctx).Unmark(ctx, id)
}

func (s *Storage) ListLazy(ctx context.Context, createdBefore time.Time) ([]model.LazyMarker, error) {
	return s.conn(ctx).ListLazy(ctx, createdBefore)
}

// tx runs statements against either the pool or an open transaction
type tx struct {
	db *gorm.DB
}

func (t *tx) CreateUser(ctx context.Context, user *model.User) error {
	if err := t.db.Create(toUserRecord(user)).Error; err != nil {
		if isUniqueViolation(err) {
			return model.ErrUsernameTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (t *tx) SaveUser(ctx context.Context, user *model.User) error {
	rec := toUserRecord(user)
	result := t.db.Model(&userRecord{}).Where("id = ?", rec.ID).Updates(map[string]any{
		"username":      rec.Username,
		"password_hash": rec.PasswordHash,
		"email":         rec.Email,
		"display_name":  rec.DisplayName,
		"updated_at":    rec.UpdatedAt,
	})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return model.ErrUsernameTaken
		}
		return fmt.Errorf("save user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (t *tx) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	var rec userRecord
	if err := t.db.First(&rec, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return rec.toModel(), nil
}

func (t *tx) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var rec userRecord
	if err := t.db.First(&rec, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return rec.toModel(), nil
}

func (t *tx) DeleteUser(ctx context.Context, id model.UserID) error {
	// Markers are removed explicitly so SQLite without foreign keys behaves the same
	if err := t.db.Where("user_id = ?", string(id)).Delete(&lazyUserRecord{}).Error; err != nil {
		return fmt.Errorf("delete lazy marker: %w", err)
	}
	if err := t.db.Delete(&userRecord{}, "id = ?", string(id)).Error; err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (t *tx) MarkLazy(ctx context.Context, id model.UserID, at time.Time) error {
	if _, err := t.GetUser(ctx, id); err != nil {
		return err
	}
	rec := &lazyUserRecord{UserID: string(id), CreatedAt: at}
	if err := t.db.Omit("User").Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateMarker
		}
		return fmt.Errorf("mark lazy: %w", err)
	}
	return nil
}

func (t *tx) IsLazy(ctx context.Context, id model.UserID) (bool, error) {
	var count int64
	if err := t.db.Model(&lazyUserRecord{}).Where("user_id = ?", string(id)).Count(&count).Error; err != nil {
		return false, fmt.Errorf("is lazy: %w", err)
	}
	return count > 0, nil
}

// Unmark relies on RowsAffected so that of two concurrent deletes only one
// observes the marker.
func (t *tx) Unmark(ctx context.Context, id model.UserID) (bool, error) {
	result := t.db.Where("user_id = ?", string(id)).Delete(&lazyUserRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("unmark: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (t *tx) ListLazy(ctx context.Context, createdBefore time.Time) ([]model.LazyMarker, error) {
	var recs []lazyUserRecord
	if err := t.db.Where("created_at < ?", createdBefore).Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list lazy: %w", err)
	}
	markers := make([]model.LazyMarker, 0, len(recs))
	for i := range recs {
		markers = append(markers, recs[i].toModel())
	}
	return markers, nil
}
