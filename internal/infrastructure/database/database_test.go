package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

func TestNewDatabase_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "identity.db")
	cfg := &config.DatabaseConfig{Path: path, MaxOpenConns: 50, SlowQuery: time.Second}

	db, err := NewDatabase(context.Background(), DriverSQLite, cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Ping(context.Background()))
	assert.FileExists(t, path)

	sqlDB, err := db.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	var n int
	require.NoError(t, db.DB().Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(t, 1, n)
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	_, err := NewDatabase(context.Background(), "oracle", &config.DatabaseConfig{}, logger.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(&config.DatabaseConfig{
		MaxIdleConns:    4,
		MaxOpenConns:    8,
		ConnMaxLifetime: time.Minute,
		SlowQuery:       50 * time.Millisecond,
	})
	assert.Equal(t, 4, opts.MaxIdleConns)
	assert.Equal(t, 8, opts.MaxOpenConns)
	assert.Equal(t, time.Minute, opts.ConnMaxLifetime)
	assert.Equal(t, 50*time.Millisecond, opts.SlowQuery)
}
