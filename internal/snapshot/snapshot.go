// Package snapshot exports identity tables to blob storage as JSON lines and
// restores them again.
//
// A snapshot is a header line, one line per entity in (table, partition key,
// row key) order, and a footer carrying per-table row counts. Restore refuses
// snapshots without a footer, so a truncated upload is never half-applied
// unnoticed.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/bravo68web/tableidentity/internal/domain/service"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// FormatVersion is written into every header.
const FormatVersion = 1

const maxLineSize = 16 << 20

// Line kinds
const (
	kindHeader = "header"
	kindRow    = "row"
	kindFooter = "footer"
)

var (
	// ErrNotFound is returned when the named snapshot does not exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrCorrupt is returned for snapshots that cannot be parsed or are incomplete.
	ErrCorrupt = errors.New("snapshot is corrupt")
)

// Manifest summarises one snapshot.
type Manifest struct {
	Name      string         `json:"name"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Counts    map[string]int `json:"counts"`
}

type line struct {
	Kind      string          `json:"kind"`
	Version   int             `json:"version,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	Tables    []string        `json:"tables,omitempty"`
	Table     string          `json:"table,omitempty"`
	PK        string          `json:"pk"`
	RK        string          `json:"rk"`
	Props     json.RawMessage `json:"props,omitempty"`
	Counts    map[string]int  `json:"counts,omitempty"`
}

// Manager moves table contents between a table client and snapshot storage.
type Manager struct {
	client  tablestore.Client
	storage service.SnapshotStorage
	tables  []string
	log     *logger.Logger
	now     func() time.Time
	retain  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetain makes every successful Export prune the store down to the n
// newest snapshots. n < 1 keeps everything.
func WithRetain(n int) Option {
	return func(m *Manager) { m.retain = n }
}

// NewManager creates a Manager covering the named tables.
func NewManager(client tablestore.Client, storage service.SnapshotStorage, tables []string, log *logger.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	m := &Manager{
		client:  client,
		storage: storage,
		tables:  slices.Clone(tables),
		log:     log.WithFields(logger.Component("snapshot")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultName derives a snapshot name from a timestamp.
func DefaultName(t time.Time) string {
	return "identity-" + t.UTC().Format("20060102T150405Z") + ".jsonl"
}

// List returns the stored snapshots.
func (m *Manager) List(ctx context.Context) ([]service.SnapshotInfo, error) {
	return m.storage.List(ctx)
}

// Delete removes the snapshot name.
func (m *Manager) Delete(ctx context.Context, name string) error {
	ok, err := m.storage.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("stat snapshot %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := m.storage.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	m.log.WithContext(ctx).Info("snapshot deleted", logger.String("snapshot", name))
	return nil
}

// Prune deletes all but the keep most recently modified snapshots and
// returns the names it removed, oldest first.
func (m *Manager) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		return nil, apperrors.InvalidArgumentf("keep", "must be at least 1, got %d", keep)
	}
	infos, err := m.storage.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(infos) <= keep {
		return nil, nil
	}
	slices.SortStableFunc(infos, func(a, b service.SnapshotInfo) int {
		return a.ModTime.Compare(b.ModTime)
	})

	var removed []string
	for _, info := range infos[:len(infos)-keep] {
		if err := m.storage.Delete(ctx, info.Name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("delete snapshot %s: %w", info.Name, err)
		}
		removed = append(removed, info.Name)
	}
	m.log.WithContext(ctx).Info("snapshots pruned",
		logger.Strings("removed", removed),
		logger.Int("kept", keep),
		logger.String("location", m.storage.Location()),
	)
	return removed, nil
}

// Export writes every covered table to the snapshot name. Rows written
// concurrently with the export may or may not be included.
func (m *Manager) Export(ctx context.Context, name string) (manifest *Manifest, err error) {
	if name == "" {
		name = DefaultName(m.now())
	}
	log := m.log.WithContext(ctx).WithFields(logger.String("snapshot", name))
	start := time.Now()

	w, err := m.storage.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create snapshot %s: %w", name, err)
	}
	closed := false
	defer func() {
		if !closed {
			err = multierr.Append(err, w.Close())
		}
	}()

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	created := m.now().UTC()
	if err := enc.Encode(line{Kind: kindHeader, Version: FormatVersion, CreatedAt: &created, Tables: m.tables}); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(m.tables))
	for _, table := range m.tables {
		counts[table] = 0
		err := tablestore.ScanAll(ctx, m.client.Table(table), tablestore.Query{}, func(e *tablestore.Entity) error {
			props, err := tablestore.MarshalProperties(e.Properties)
			if err != nil {
				return err
			}
			counts[table]++
			return enc.Encode(line{Kind: kindRow, Table: table, PK: e.PartitionKey, RK: e.RowKey, Props: props})
		})
		if err != nil {
			return nil, fmt.Errorf("export table %s: %w", table, err)
		}
		log.Debug("table exported", logger.Table(table), logger.Int("rows", counts[table]))
	}

	if err := enc.Encode(line{Kind: kindFooter, Counts: counts}); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("write snapshot %s: %w", name, err)
	}
	closed = true
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("write snapshot %s: %w", name, err)
	}

	log.Info("snapshot exported",
		logger.String("location", m.storage.Location()),
		logger.Any("counts", counts),
		logger.Latency(time.Since(start)),
	)
	if m.retain > 0 {
		if _, err := m.Prune(ctx, m.retain); err != nil {
			log.Warn("snapshot retention failed", logger.Error(err))
		}
	}
	return &Manifest{Name: name, Version: FormatVersion, CreatedAt: created, Counts: counts}, nil
}

// Restore upserts every row of the snapshot name into the covered tables.
// Existing rows that are absent from the snapshot are left alone.
func (m *Manager) Restore(ctx context.Context, name string) (*Manifest, error) {
	log := m.log.WithContext(ctx).WithFields(logger.String("snapshot", name))
	start := time.Now()

	r, err := m.storage.Open(ctx, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open snapshot %s: %w", name, err)
	}
	defer r.Close()

	manifest, err := m.restore(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot %s: %w", name, err)
	}
	manifest.Name = name

	log.Info("snapshot restored", logger.Any("counts", manifest.Counts), logger.Latency(time.Since(start)))
	return manifest, nil
}

func (m *Manager) restore(ctx context.Context, r io.Reader) (*Manifest, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	next := func() (*line, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: unexpected end of snapshot", ErrCorrupt)
		}
		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return &l, nil
	}

	head, err := next()
	if err != nil {
		return nil, err
	}
	if head.Kind != kindHeader || head.Version != FormatVersion {
		return nil, fmt.Errorf("%w: missing or unsupported header", ErrCorrupt)
	}
	for _, table := range head.Tables {
		if !slices.Contains(m.tables, table) {
			return nil, fmt.Errorf("%w: unknown table %q", ErrCorrupt, table)
		}
		if err := m.client.Table(table).CreateIfNotExists(ctx); err != nil {
			return nil, err
		}
	}

	manifest := &Manifest{Version: head.Version, Counts: make(map[string]int)}
	if head.CreatedAt != nil {
		manifest.CreatedAt = *head.CreatedAt
	}
	b := &batcher{client: m.client}

	for {
		l, err := next()
		if err != nil {
			return nil, err
		}
		switch l.Kind {
		case kindRow:
			if !slices.Contains(head.Tables, l.Table) {
				return nil, fmt.Errorf("%w: row for undeclared table %q", ErrCorrupt, l.Table)
			}
			props, err := tablestore.UnmarshalProperties(l.Props)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			if err := b.add(ctx, l.Table, &tablestore.Entity{PartitionKey: l.PK, RowKey: l.RK, Properties: props}); err != nil {
				return nil, err
			}
			manifest.Counts[l.Table]++
		case kindFooter:
			if err := b.flush(ctx); err != nil {
				return nil, err
			}
			for table, want := range l.Counts {
				if manifest.Counts[table] != want {
					return nil, fmt.Errorf("%w: table %s has %d rows, footer says %d", ErrCorrupt, table, manifest.Counts[table], want)
				}
			}
			return manifest, nil
		default:
			return nil, fmt.Errorf("%w: unexpected %q line", ErrCorrupt, l.Kind)
		}
	}
}

// batcher groups consecutive rows of one table partition into upsert batches.
type batcher struct {
	client  tablestore.Client
	table   string
	pending []tablestore.Operation
}

func (b *batcher) add(ctx context.Context, table string, e *tablestore.Entity) error {
	if len(b.pending) > 0 && (table != b.table ||
		e.PartitionKey != b.pending[0].Entity.PartitionKey ||
		len(b.pending) == tablestore.MaxBatchSize) {
		if err := b.flush(ctx); err != nil {
			return err
		}
	}
	b.table = table
	b.pending = append(b.pending, tablestore.InsertOrReplace(e))
	return nil
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	_, err := b.client.Table(b.table).ExecuteBatch(ctx, b.pending)
	b.pending = b.pending[:0]
	if err != nil {
		return fmt.Errorf("restore table %s: %w", b.table, err)
	}
	return nil
}
