// Package indexing rebuilds the secondary index tables from the tables they
// index. Rebuilds only upsert index rows, so they can be re-run safely and
// never remove rows that no longer match a user.
package indexing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bravo68web/tableidentity/internal/codec"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/identity"
	"github.com/bravo68web/tableidentity/internal/keys"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// FlushSize is the number of pending index writes issued together.
const FlushSize = 100

// Index names a secondary index.
type Index string

const (
	IndexUsername Index = "username"
	IndexEmail    Index = "email"
	IndexLogin    Index = "login"
)

// AllIndexes lists every index in rebuild order.
var AllIndexes = []Index{IndexUsername, IndexEmail, IndexLogin}

// ParseIndex converts a name to an Index.
func ParseIndex(name string) (Index, error) {
	for _, idx := range AllIndexes {
		if string(idx) == name {
			return idx, nil
		}
	}
	return "", fmt.Errorf("unknown index %q", name)
}

// Stats summarises one rebuild.
type Stats struct {
	Index    Index         `json:"index"`
	Scanned  int           `json:"scanned"`
	Written  int           `json:"written"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Builder rebuilds index tables.
type Builder struct {
	users      tablestore.Table
	usernames  tablestore.Table
	emails     tablestore.Table
	logins     tablestore.Table
	loginIndex tablestore.Table
	log        *logger.Logger
}

// NewBuilder creates a Builder over the named tables of client.
func NewBuilder(client tablestore.Client, tables identity.Tables, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.NewNop()
	}
	d := identity.DefaultTables()
	pick := func(name, def string) string {
		if name == "" {
			return def
		}
		return name
	}
	return &Builder{
		users:      client.Table(pick(tables.Users, d.Users)),
		usernames:  client.Table(pick(tables.UsernameIndex, d.UsernameIndex)),
		emails:     client.Table(pick(tables.EmailIndex, d.EmailIndex)),
		logins:     client.Table(pick(tables.Logins, d.Logins)),
		loginIndex: client.Table(pick(tables.LoginProviderKeyIndex, d.LoginProviderKeyIndex)),
		log:        log.WithFields(logger.Component("indexing")),
	}
}

// Rebuild rebuilds one index.
func (b *Builder) Rebuild(ctx context.Context, idx Index) (*Stats, error) {
	switch idx {
	case IndexUsername:
		return b.RebuildUsernames(ctx)
	case IndexEmail:
		return b.RebuildEmails(ctx)
	case IndexLogin:
		return b.RebuildLogins(ctx)
	default:
		return nil, fmt.Errorf("unknown index %q", idx)
	}
}

// RebuildAll rebuilds every index in turn, stopping at the first failure.
func (b *Builder) RebuildAll(ctx context.Context) ([]*Stats, error) {
	out := make([]*Stats, 0, len(AllIndexes))
	for _, idx := range AllIndexes {
		st, err := b.Rebuild(ctx, idx)
		if err != nil {
			return out, err
		}
		out = append(out, st)
	}
	return out, nil
}

// RebuildUsernames writes a username index row for every user row.
func (b *Builder) RebuildUsernames(ctx context.Context) (*Stats, error) {
	return b.rebuildFromUsers(ctx, IndexUsername, b.usernames, func(u *models.User) (string, string, bool) {
		if keys.ValidateUsername(u.UserName) != nil {
			return "", "", false
		}
		pk, rk := keys.UsernameIndex(u.UserName)
		return pk, rk, true
	})
}

// RebuildEmails writes an email index row for every user row with an email.
func (b *Builder) RebuildEmails(ctx context.Context) (*Stats, error) {
	return b.rebuildFromUsers(ctx, IndexEmail, b.emails, func(u *models.User) (string, string, bool) {
		if u.Email == "" {
			return "", "", false
		}
		pk, rk := keys.EmailIndex(u.Email)
		return pk, rk, true
	})
}

// RebuildLogins writes a provider-key index row for every login row.
func (b *Builder) RebuildLogins(ctx context.Context) (*Stats, error) {
	st := &Stats{Index: IndexLogin}
	start := time.Now()
	log := b.log.WithFields(logger.Index(string(IndexLogin)))
	w := newWriter(b.loginIndex)

	err := tablestore.ScanAll(ctx, b.logins, tablestore.Query{}, func(e *tablestore.Entity) error {
		st.Scanned++
		var l models.UserLogin
		if err := codec.FromEntity(e, &l); err != nil {
			return err
		}
		if l.LoginProvider == "" || l.ProviderKey == "" {
			st.Skipped++
			log.Warn("skipping incomplete login row", logger.PartitionKey(e.PartitionKey), logger.RowKey(e.RowKey))
			return nil
		}
		userID := l.UserID
		if userID == "" {
			userID = e.PartitionKey
		}
		pk, rk := keys.LoginProviderKeyIndex(l.LoginProvider, l.ProviderKey)
		return w.add(ctx, indexRow(pk, rk, userID))
	})
	if err == nil {
		err = w.flush(ctx)
	}
	st.Written = w.written
	st.Duration = time.Since(start)
	if err != nil {
		return st, fmt.Errorf("rebuild %s index: %w", IndexLogin, err)
	}
	log.Info("index rebuilt", logger.Int("scanned", st.Scanned), logger.Int("written", st.Written))
	return st, nil
}

func (b *Builder) rebuildFromUsers(ctx context.Context, idx Index, target tablestore.Table, key func(*models.User) (string, string, bool)) (*Stats, error) {
	st := &Stats{Index: idx}
	start := time.Now()
	log := b.log.WithFields(logger.Index(string(idx)))
	w := newWriter(target)

	err := tablestore.ScanAll(ctx, b.users, tablestore.Query{}, func(e *tablestore.Entity) error {
		st.Scanned++
		var u models.User
		if err := codec.FromEntity(e, &u); err != nil {
			return err
		}
		if u.ID == "" {
			u.ID = e.RowKey
		}
		pk, rk, ok := key(&u)
		if !ok {
			st.Skipped++
			log.Debug("user has no indexable value", logger.UserID(u.ID))
			return nil
		}
		return w.add(ctx, indexRow(pk, rk, u.ID))
	})
	if err == nil {
		err = w.flush(ctx)
	}
	st.Written = w.written
	st.Duration = time.Since(start)
	if err != nil {
		return st, fmt.Errorf("rebuild %s index: %w", idx, err)
	}
	log.Info("index rebuilt", logger.Int("scanned", st.Scanned), logger.Int("written", st.Written), logger.Int("skipped", st.Skipped))
	return st, nil
}

func indexRow(pk, rk, userID string) *tablestore.Entity {
	return &tablestore.Entity{
		PartitionKey: pk,
		RowKey:       rk,
		Properties:   tablestore.Properties{"UserId": userID},
	}
}

// writer accumulates index rows and upserts them FlushSize at a time. Each
// row lives in its own partition, so the writes are issued concurrently
// rather than as a batch.
type writer struct {
	t       tablestore.Table
	pending []*tablestore.Entity
	written int
}

func newWriter(t tablestore.Table) *writer {
	return &writer{t: t, pending: make([]*tablestore.Entity, 0, FlushSize)}
}

func (w *writer) add(ctx context.Context, e *tablestore.Entity) error {
	w.pending = append(w.pending, e)
	if len(w.pending) >= FlushSize {
		return w.flush(ctx)
	}
	return nil
}

func (w *writer) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range w.pending {
		g.Go(func() error {
			_, err := w.t.Execute(gctx, tablestore.InsertOrReplace(e))
			return err
		})
	}
	err := g.Wait()
	if err == nil {
		w.written += len(w.pending)
	}
	w.pending = w.pending[:0]
	return err
}
