package injectable

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/bravo68web/tableidentity/internal/application/service"
	"github.com/bravo68web/tableidentity/internal/config"
	domainservice "github.com/bravo68web/tableidentity/internal/domain/service"
	"github.com/bravo68web/tableidentity/internal/identity"
	"github.com/bravo68web/tableidentity/internal/indexing"
	"github.com/bravo68web/tableidentity/internal/infrastructure/storage"
	"github.com/bravo68web/tableidentity/internal/infrastructure/tables"
	"github.com/bravo68web/tableidentity/internal/snapshot"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// Dependencies holds everything the router and the CLI commands need
type Dependencies struct {
	Config  *config.Config
	Backend *tables.Backend
	Store   *identity.Store

	// TracerProvider is nil unless one was passed with WithTracerProvider
	TracerProvider trace.TracerProvider

	// Services
	UserService    *service.UserService
	SessionService *service.SessionService
	Indexes        *indexing.Builder
	Snapshots      *snapshot.Manager
	Storage        domainservice.SnapshotStorage
}

// Option adjusts how dependencies are built
type Option func(*options)

type options struct {
	tracerProvider trace.TracerProvider
	backend        *tables.Backend
}

// WithTracerProvider starts identity store spans from tp
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithBackend uses an already opened backend instead of opening one from config
func WithBackend(b *tables.Backend) Option {
	return func(o *options) { o.backend = b }
}

// LoadDependencies opens the configured table store and wires the services on top
func LoadDependencies(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*Dependencies, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	backend := o.backend
	if backend == nil {
		var err error
		if backend, err = tables.Open(ctx, cfg, log); err != nil {
			return nil, fmt.Errorf("failed to open table store: %w", err)
		}
	}

	store := identity.New(backend.Client, cfg.Store.Tables,
		identity.WithLogger(log),
		identity.WithTracerProvider(o.tracerProvider),
	)
	if cfg.Store.CreateTables {
		if err := store.EnsureTables(ctx); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to provision tables: %w", err), backend.Close())
		}
		log.Info("Identity tables ready", logger.String("backend", backend.Name))
	}

	snapshotStorage, err := storage.Open(ctx, &cfg.Snapshot)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to initialize snapshot storage: %w", err), backend.Close())
	}

	names := store.TableNames()
	userService := service.NewUserService(store, cfg.Lockout)

	return &Dependencies{
		Config:         cfg,
		Backend:        backend,
		Store:          store,
		TracerProvider: o.tracerProvider,
		UserService:    userService,
		SessionService: service.NewSessionService(userService, cfg.Server),
		Indexes:        indexing.NewBuilder(backend.Client, names, log),
		Snapshots:      snapshot.NewManager(backend.Client, snapshotStorage, names.Names(), log,
			snapshot.WithRetain(cfg.Snapshot.Retain)),
		Storage:        snapshotStorage,
	}, nil
}

// Close releases the table store connections and the snapshot store
func (d *Dependencies) Close() error {
	err := d.Backend.Close()
	if c, ok := d.Storage.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}
