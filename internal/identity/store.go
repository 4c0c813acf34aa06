// Package identity implements the user store on top of a partitioned table
// store. Usernames, emails and external logins are resolved through index
// tables maintained alongside the users table; uniqueness relies on inserts
// failing when the index key is already taken.
//
// Multi-table writes are not atomic. Create compensates earlier steps when a
// later one fails; Delete removes child and index rows on a best-effort basis.
// A failure between steps can leave orphan or missing index rows, never a
// user row that resolves to the wrong index entry.
package identity

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/bravo68web/tableidentity/internal/domain/repository"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

const tracerName = "github.com/bravo68web/tableidentity/internal/identity"

// DefaultSearchLimit caps SearchUsernames when the caller passes no limit.
const DefaultSearchLimit = 100

// Tables names the tables the store works with.
type Tables struct {
	Users                 string `mapstructure:"users"`
	UsernameIndex         string `mapstructure:"username_index"`
	Logins                string `mapstructure:"logins"`
	LoginProviderKeyIndex string `mapstructure:"login_provider_key_index"`
	Claims                string `mapstructure:"claims"`
	Roles                 string `mapstructure:"roles"`
	EmailIndex            string `mapstructure:"email_index"`
}

// DefaultTables returns the stock table names.
func DefaultTables() Tables {
	return Tables{
		Users:                 "users",
		UsernameIndex:         "userIndexItems",
		Logins:                "logins",
		LoginProviderKeyIndex: "loginProviderKeyIndex",
		Claims:                "claims",
		Roles:                 "roles",
		EmailIndex:            "userEmailIndex",
	}
}

// withDefaults fills empty names from DefaultTables.
func (t Tables) withDefaults() Tables {
	d := DefaultTables()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&t.Users, d.Users)
	fill(&t.UsernameIndex, d.UsernameIndex)
	fill(&t.Logins, d.Logins)
	fill(&t.LoginProviderKeyIndex, d.LoginProviderKeyIndex)
	fill(&t.Claims, d.Claims)
	fill(&t.Roles, d.Roles)
	fill(&t.EmailIndex, d.EmailIndex)
	return t
}

// Names lists every table name.
func (t Tables) Names() []string {
	return []string{t.Users, t.UsernameIndex, t.Logins, t.LoginProviderKeyIndex, t.Claims, t.Roles, t.EmailIndex}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for swallowed cleanup failures.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTracerProvider sets the provider spans are started from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Store) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// Store is the identity store. Table references are fixed at construction,
// so a Store is safe for concurrent use.
type Store struct {
	names Tables

	users      tablestore.Table
	usernames  tablestore.Table
	emails     tablestore.Table
	logins     tablestore.Table
	loginIndex tablestore.Table
	claims     tablestore.Table
	roles      tablestore.Table

	log    *logger.Logger
	tracer trace.Tracer
}

var _ repository.UserStore = (*Store)(nil)

// New creates a Store over the tables of client.
func New(client tablestore.Client, tables Tables, opts ...Option) *Store {
	tables = tables.withDefaults()
	s := &Store{
		names:      tables,
		users:      client.Table(tables.Users),
		usernames:  client.Table(tables.UsernameIndex),
		emails:     client.Table(tables.EmailIndex),
		logins:     client.Table(tables.Logins),
		loginIndex: client.Table(tables.LoginProviderKeyIndex),
		claims:     client.Table(tables.Claims),
		roles:      client.Table(tables.Roles),
		log:        logger.NewNop(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithFields(logger.Component("identity"))
	return s
}

// TableNames returns the resolved table names.
func (s *Store) TableNames() Tables {
	return s.names
}

// AllTables returns every table the store writes to.
func (s *Store) AllTables() []tablestore.Table {
	return []tablestore.Table{s.users, s.usernames, s.logins, s.loginIndex, s.claims, s.roles, s.emails}
}

// EnsureTables creates every table that does not exist yet.
func (s *Store) EnsureTables(ctx context.Context) error {
	var errs error
	for _, t := range s.AllTables() {
		if err := t.CreateIfNotExists(ctx); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		s.log.Debug("table ready", logger.Table(t.Name()))
	}
	return errs
}

func (s *Store) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "identity."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Store) logCtx(ctx context.Context) *logger.Logger {
	return s.log.WithContext(ctx)
}
