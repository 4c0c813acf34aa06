package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "users", cfg.Store.Tables.Users)
	assert.Equal(t, "userIndexItems", cfg.Store.Tables.UsernameIndex)
	assert.Equal(t, "userEmailIndex", cfg.Store.Tables.EmailIndex)
	assert.Equal(t, 5, cfg.Lockout.MaxFailedAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Lockout.Duration)
	assert.True(t, cfg.Snapshot.IsFilesystem())
	assert.Equal(t, "Admin", cfg.Server.AdminRole)
	assert.Equal(t, 12*time.Hour, cfg.Server.SessionTTL)
	assert.Equal(t, "0.0.0.0:9090", cfg.ServerAddress())
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 200*time.Millisecond, cfg.Database.SlowQuery)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: redis
  tables:
    users: people
lockout:
  duration: 90s
redis:
  addr: cache:6379
`)
	t.Setenv("IDENTITY_STORE_PAGE_SIZE", "25")
	t.Setenv("IDENTITY_REDIS_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "people", cfg.Store.Tables.Users)
	assert.Equal(t, "roles", cfg.Store.Tables.Roles)
	assert.Equal(t, 90*time.Second, cfg.Lockout.Duration)
	assert.Equal(t, 25, cfg.Store.PageSize)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		path := writeConfig(t, "{}\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"no admin role", func(c *Config) { c.Server.AdminRole = "" }},
		{"no session ttl", func(c *Config) { c.Server.SessionTTL = 0 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "cassandra" }},
		{"empty table", func(c *Config) { c.Store.Tables.Claims = "" }},
		{"shared table", func(c *Config) { c.Store.Tables.Roles = c.Store.Tables.Claims }},
		{"s3 without bucket", func(c *Config) { c.Snapshot.Type = "s3"; c.Snapshot.S3Region = "eu-west-1" }},
		{"unknown snapshot type", func(c *Config) { c.Snapshot.Type = "ftp" }},
		{"lockout without attempts", func(c *Config) { c.Lockout.MaxFailedAttempts = 0 }},
		{"postgres without db", func(c *Config) { c.Store.Backend = BackendPostgres; c.Database.DBName = "" }},
		{"sqlite without path", func(c *Config) { c.Store.Backend = BackendSQLite; c.Database.Path = "" }},
		{"sample ratio above one", func(c *Config) { c.OTEL.SampleRatio = 1.5 }},
		{"negative snapshot retain", func(c *Config) { c.Snapshot.Retain = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
