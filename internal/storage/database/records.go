package database

import (
	"time"

	"github.com/mcoot/lazysignup-go/internal/model"
)

// userRecord is the users table
type userRecord struct {
	ID           string    `gorm:"primaryKey;type:text"`
	Username     string    `gorm:"uniqueIndex;not null;type:text"`
	PasswordHash string    `gorm:"column:password_hash;not null;type:text"`
	Email        string    `gorm:"not null;type:text"`
	DisplayName  string    `gorm:"column:display_name;not null;type:text"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (userRecord) TableName() string { return "users" }

// lazyUserRecord is the marker table: one row per lazy user
type lazyUserRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id;uniqueIndex;not null;type:text"`
	CreatedAt time.Time `gorm:"not null;index;autoCreateTime:false"`

	User *userRecord `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

func (lazyUserRecord) TableName() string { return "lazy_users" }

// allRecords lists the tables created by Migrate, parents first
func allRecords() []any {
	return []any{&userRecord{}, &lazyUserRecord{}}
}

func toUserRecord(u *model.User) *userRecord {
	return &userRecord{
		ID:           string(u.ID),
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r *userRecord) toModel() *model.User {
	return &model.User{
		ID:           model.UserID(r.ID),
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r *lazyUserRecord) toModel() model.LazyMarker {
	return model.LazyMarker{
		UserID:    model.UserID(r.UserID),
		CreatedAt: r.CreatedAt,
	}
}
