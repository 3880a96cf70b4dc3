package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/lazysignup-go/internal/storage"
	"github.com/mcoot/lazysignup-go/internal/storage/storagetest"
	"github.com/mcoot/lazysignup-go/internal/testutil"
)

func newSQLiteStorage(t *testing.T) *Storage {
	t.Helper()
	db, err := Open(DefaultConfig(), testutil.NopLogger())
	require.NoError(t, err)
	return New(db)
}

func TestSQLiteStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.Suite{
		NewStorage: func() storage.Storage { return newSQLiteStorage(t) },
	})
}

func TestMigrateCreatesTables(t *testing.T) {
	s := newSQLiteStorage(t)
	defer func() { _ = s.Close() }()

	migrator := s.DB().Migrator()
	assert.True(t, migrator.HasTable("users"))
	assert.True(t, migrator.HasTable("lazy_users"))
	assert.True(t, migrator.HasIndex(&lazyUserRecord{}, "UserID"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStorage(t)
	defer func() { _ = s.Close() }()

	assert.NoError(t, Migrate(s.DB()))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{name: "memory", dsn: ":memory:", want: ":memory:?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"},
		{name: "existing query", dsn: "data/app.db?cache=shared", want: "data/app.db?cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"},
		{name: "caller timeout kept", dsn: "app.db?_pragma=busy_timeout(100)", want: "app.db?_pragma=busy_timeout(100)&_pragma=foreign_keys(1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sqliteDSN(tt.dsn))
		})
	}
}

func TestFileDatabasePragmasOnEveryConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "nested", "lazysignup.db")
	db, err := Open(cfg, testutil.NopLogger())
	require.NoError(t, err)
	s := New(db)
	defer func() { _ = s.Close() }()

	sqlDB, err := db.DB()
	require.NoError(t, err)

	// Holding every connection at once forces distinct pooled connections
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		conn, err := sqlDB.Conn(ctx)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		var foreignKeys, busyTimeout int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, 1, foreignKeys, "connection %d", i)
		assert.Equal(t, 5000, busyTimeout, "connection %d", i)
	}
}
