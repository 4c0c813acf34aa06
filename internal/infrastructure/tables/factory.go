// Package tables provides the SQL and Redis implementations of the table
// store contract and selects one from configuration.
package tables

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/internal/infrastructure/database"
	redisinfra "github.com/bravo68web/tableidentity/internal/infrastructure/redis"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// Dropper is implemented by backends that can remove a table outright.
type Dropper interface {
	DropTable(ctx context.Context, name string) error
}

// Backend is an opened table store together with the connections it holds.
type Backend struct {
	Name    string
	Client  tablestore.Client
	closers []io.Closer
}

// Drop removes the named tables when the backend supports it.
func (b *Backend) Drop(ctx context.Context, names ...string) error {
	d, ok := b.Client.(Dropper)
	if !ok {
		return fmt.Errorf("backend %s cannot drop tables", b.Name)
	}
	var errs error
	for _, name := range names {
		errs = multierr.Append(errs, d.DropTable(ctx, name))
	}
	return errs
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	var errs error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, b.closers[i].Close())
	}
	return errs
}

// Open builds the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.Get()
	}
	store := cfg.Store

	switch store.Backend {
	case config.BackendMemory, "":
		log.Warn("Using the in-memory table store; data is lost on exit")
		return &Backend{
			Name:   config.BackendMemory,
			Client: tablestore.NewMemoryClient(tablestore.WithPageSize(store.PageSize)),
		}, nil

	case config.BackendPostgres, config.BackendSQLite:
		db, err := database.NewDatabase(ctx, store.Backend, &cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:    store.Backend,
			Client:  NewGormClient(db.DB(), store.TablePrefix, WithGormPageSize(store.PageSize)),
			closers: []io.Closer{db},
		}, nil

	case config.BackendRedis:
		rdb, err := redisinfra.NewClient(ctx, &cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:    config.BackendRedis,
			Client:  NewRedisClient(rdb, store.RedisNamespace, WithRedisPageSize(store.PageSize)),
			closers: []io.Closer{rdb},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", store.Backend)
	}
}
