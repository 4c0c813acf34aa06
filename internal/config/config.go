package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bravo68web/tableidentity/internal/identity"
)

// EnvPrefix prefixes every environment override, e.g. IDENTITY_STORE_BACKEND.
const EnvPrefix = "IDENTITY"

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Lockout  LockoutConfig  `mapstructure:"lockout"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	OTEL     OTELConfig     `mapstructure:"otel"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"` // debug, release, test
	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Members of AdminRole may call the admin API with a session token.
	AdminRole  string        `mapstructure:"admin_role"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// StoreConfig selects the table store backend and the identity table names
type StoreConfig struct {
	Backend      string          `mapstructure:"backend"` // memory, postgres, sqlite, redis
	CreateTables bool            `mapstructure:"create_tables"`
	Tables       identity.Tables `mapstructure:"tables"`
	// TablePrefix is prepended to physical table names in the SQL backends
	TablePrefix string `mapstructure:"table_prefix"`
	// RedisNamespace prefixes every key written by the redis backend
	RedisNamespace string `mapstructure:"redis_namespace"`
	PageSize       int    `mapstructure:"page_size"`
}

// DatabaseConfig holds the SQL connection settings. Host through SSLMode
// apply to postgres, Path to sqlite.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// SlowQuery is the latency above which queries are logged as warnings
	SlowQuery time.Duration `mapstructure:"slow_query"`
}

// DSN returns the database connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// SnapshotConfig holds the blob storage used for table snapshots
type SnapshotConfig struct {
	Type        string `mapstructure:"type"` // filesystem, s3
	BasePath    string `mapstructure:"base_path"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Endpoint  string `mapstructure:"s3_endpoint"` // For S3-compatible services
	S3Prefix    string `mapstructure:"s3_prefix"`
	// Retain is how many snapshots an export keeps; 0 keeps all of them
	Retain int `mapstructure:"retain"`
}

// IsS3 returns true if the snapshot storage type is S3
func (s *SnapshotConfig) IsS3() bool {
	return strings.ToLower(s.Type) == "s3"
}

// IsFilesystem returns true if the snapshot storage type is filesystem
func (s *SnapshotConfig) IsFilesystem() bool {
	return strings.ToLower(s.Type) == "filesystem" || s.Type == ""
}

// LockoutConfig holds the account lockout policy applied on failed sign-ins
type LockoutConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	Duration          time.Duration `mapstructure:"duration"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level          string `mapstructure:"level"`  // debug, info, warn, error
	Output         string `mapstructure:"output"` // console, file, otel
	Format         string `mapstructure:"format"` // json, console
	FilePath       string `mapstructure:"file_path"`
	FileMaxSizeMB  int    `mapstructure:"file_max_size_mb"`
	FileMaxBackups int    `mapstructure:"file_max_backups"`
	FileMaxAgeDays int    `mapstructure:"file_max_age_days"`
	FileCompress   bool   `mapstructure:"file_compress"`
	Development    bool   `mapstructure:"development"`
}

// OTELConfig holds OpenTelemetry log export configuration
type OTELConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	Endpoint       string            `mapstructure:"endpoint"`
	ServiceName    string            `mapstructure:"service_name"`
	ServiceVersion string            `mapstructure:"service_version"`
	Environment    string            `mapstructure:"environment"`
	Insecure       bool              `mapstructure:"insecure"`
	UseHTTP        bool              `mapstructure:"use_http"`
	Headers        map[string]string `mapstructure:"headers"`
	// SampleRatio is the share of new traces recorded; child spans follow
	// their parent
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load reads configuration from file and environment variables.
// An explicit path must exist; without one, ./config.yaml, ./configs/config.yaml
// and /etc/tableidentity/config.yaml are tried. Environment variables always
// override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tableidentity")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found; rely on defaults and env vars
		}
	}

	overrideFromEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.admin_role", "Admin")
	v.SetDefault("server.session_ttl", 12*time.Hour)

	// Store defaults
	tables := identity.DefaultTables()
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.create_tables", true)
	v.SetDefault("store.tables.users", tables.Users)
	v.SetDefault("store.tables.username_index", tables.UsernameIndex)
	v.SetDefault("store.tables.logins", tables.Logins)
	v.SetDefault("store.tables.login_provider_key_index", tables.LoginProviderKeyIndex)
	v.SetDefault("store.tables.claims", tables.Claims)
	v.SetDefault("store.tables.roles", tables.Roles)
	v.SetDefault("store.tables.email_index", tables.EmailIndex)
	v.SetDefault("store.table_prefix", "ts_")
	v.SetDefault("store.redis_namespace", "identity")
	v.SetDefault("store.page_size", 1000)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "identity")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "identity")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "./data/identity.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 10*time.Minute)
	v.SetDefault("database.slow_query", 200*time.Millisecond)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	// Snapshot defaults
	v.SetDefault("snapshot.type", "filesystem")
	v.SetDefault("snapshot.base_path", "./data/snapshots")
	v.SetDefault("snapshot.s3_prefix", "snapshots/")
	v.SetDefault("snapshot.retain", 0)

	// Lockout defaults
	v.SetDefault("lockout.enabled", true)
	v.SetDefault("lockout.max_failed_attempts", 5)
	v.SetDefault("lockout.duration", 5*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "console")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file_path", "./logs/identity.log")
	v.SetDefault("logging.file_max_size_mb", 100)
	v.SetDefault("logging.file_max_backups", 3)
	v.SetDefault("logging.file_max_age_days", 28)

	// OTEL defaults
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.service_name", "tableidentity")
	v.SetDefault("otel.service_version", "0.1.0")
	v.SetDefault("otel.environment", "development")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("otel.sample_ratio", 1.0)
}

// overrideFromEnv handles special environment variable overrides
func overrideFromEnv(v *viper.Viper) {
	if dbPass := os.Getenv(EnvPrefix + "_DB_PASSWORD"); dbPass != "" {
		v.Set("database.password", dbPass)
	}
	if redisPass := os.Getenv(EnvPrefix + "_REDIS_PASSWORD"); redisPass != "" {
		v.Set("redis.password", redisPass)
	}

	// S3 credentials from env (more secure than config file)
	if s3Key := os.Getenv("AWS_ACCESS_KEY_ID"); s3Key != "" {
		v.Set("snapshot.s3_access_key", s3Key)
	}
	if s3Secret := os.Getenv("AWS_SECRET_ACCESS_KEY"); s3Secret != "" {
		v.Set("snapshot.s3_secret_key", s3Secret)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.AdminRole == "" {
		return fmt.Errorf("server admin_role is required")
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("server session_ttl must be positive")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return fmt.Errorf("otel sample_ratio must be between 0 and 1")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required for the postgres backend")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("database name is required for the postgres backend")
		}
	case BackendSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}

	names := map[string]bool{}
	for _, name := range c.Store.Tables.Names() {
		if name == "" {
			return fmt.Errorf("table names must not be empty")
		}
		if names[name] {
			return fmt.Errorf("table name %q is used twice", name)
		}
		names[name] = true
	}

	if c.Snapshot.Retain < 0 {
		return fmt.Errorf("snapshot retain must not be negative")
	}
	if c.Snapshot.IsS3() {
		if c.Snapshot.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required when using S3 snapshot storage")
		}
		if c.Snapshot.S3Region == "" {
			return fmt.Errorf("S3 region is required when using S3 snapshot storage")
		}
	} else if c.Snapshot.IsFilesystem() {
		if c.Snapshot.BasePath == "" {
			return fmt.Errorf("snapshot base path is required for filesystem storage")
		}
	} else {
		return fmt.Errorf("invalid snapshot storage type: %s", c.Snapshot.Type)
	}

	if c.Lockout.Enabled {
		if c.Lockout.MaxFailedAttempts <= 0 {
			return fmt.Errorf("lockout max_failed_attempts must be positive")
		}
		if c.Lockout.Duration <= 0 {
			return fmt.Errorf("lockout duration must be positive")
		}
	}

	return nil
}

// ServerAddress returns the HTTP server address
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Mode == "debug" || c.Server.Mode == "development"
}
