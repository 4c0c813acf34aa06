// Package database opens the SQL connection backing the postgres and sqlite
// table stores.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqliteParams enable WAL so readers do not block the single writer
const sqliteParams = "?_busy_timeout=5000&_journal_mode=WAL"

// Options tunes the connection pool and query logging.
type Options struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SlowQuery       time.Duration
	LogLevel        gormlogger.LogLevel
}

// OptionsFrom reads pool settings from cfg
func OptionsFrom(cfg *config.DatabaseConfig) Options {
	return Options{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		SlowQuery:       cfg.SlowQuery,
		LogLevel:        gormlogger.Warn,
	}
}

// Database wraps the GORM database connection
type Database struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewDatabase connects with the named driver using cfg.
func NewDatabase(ctx context.Context, driver string, cfg *config.DatabaseConfig, log *logger.Logger) (*Database, error) {
	if log == nil {
		log = logger.Get()
	}
	log = log.WithFields(logger.Component("database"), logger.String("driver", driver))
	opts := OptionsFrom(cfg)

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		log.Info("Connecting to postgres",
			logger.String("host", cfg.Host),
			logger.Int("port", cfg.Port),
			logger.String("database", cfg.DBName),
			logger.String("user", cfg.User),
		)
		dialector = postgres.Open(cfg.DSN())
	case DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		log.Info("Opening sqlite database", logger.String("path", cfg.Path))
		dialector = sqlite.Open(cfg.Path + sqliteParams)
		// single writer
		opts.MaxOpenConns = 1
		opts.MaxIdleConns = 1
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	return Open(ctx, dialector, opts, log)
}

// Open connects through dialector and verifies the connection.
func Open(ctx context.Context, dialector gorm.Dialector, opts Options, log *logger.Logger) (*Database, error) {
	if log == nil {
		log = logger.NewNop()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(log, opts.LogLevel, opts.SlowQuery),
		PrepareStmt:    dialector.Name() == DriverPostgres,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	d := &Database{db: db, log: log}
	if err := d.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")
	return d, nil
}

// DB returns the underlying GORM database instance
func (d *Database) DB() *gorm.DB {
	return d.db
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close logs the final pool statistics and closes the connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}

	stats := sqlDB.Stats()
	d.log.Info("Closing database connection",
		logger.Int("open_connections", stats.OpenConnections),
		logger.Int64("wait_count", stats.WaitCount),
		logger.Duration("wait_duration", stats.WaitDuration),
	)
	return sqlDB.Close()
}
