package tables

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bravo68web/tableidentity/internal/tablestore"
)

// entityRow is the physical layout of every logical table in SQL.
type entityRow struct {
	PartitionKey string         `gorm:"primaryKey;column:partition_key;type:varchar(1024)"`
	RowKey       string         `gorm:"primaryKey;column:row_key;type:varchar(1024)"`
	ETag         string         `gorm:"column:etag;type:varchar(64);not null"`
	Timestamp    time.Time      `gorm:"column:timestamp;not null"`
	Properties   datatypes.JSON `gorm:"column:properties"`
}

// GormOption configures a GormClient.
type GormOption func(*GormClient)

// WithGormPageSize caps the number of entities returned per page.
func WithGormPageSize(n int) GormOption {
	return func(c *GormClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// GormClient stores each logical table as its own SQL table with columns
// partition_key, row_key, etag, timestamp and a JSON properties document.
type GormClient struct {
	db       *gorm.DB
	prefix   string
	pageSize int
	now      func() time.Time
}

// NewGormClient creates a table client over db. Physical table names are the
// lower-cased prefix plus the logical name.
func NewGormClient(db *gorm.DB, prefix string, opts ...GormOption) *GormClient {
	c := &GormClient{
		db:       db,
		prefix:   prefix,
		pageSize: tablestore.DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table returns the named table.
func (c *GormClient) Table(name string) tablestore.Table {
	return &gormTable{client: c, name: name, physical: PhysicalName(c.prefix, name)}
}

// DropTable removes the physical table behind name.
func (c *GormClient) DropTable(ctx context.Context, name string) error {
	return c.db.WithContext(ctx).Migrator().DropTable(PhysicalName(c.prefix, name))
}

// PhysicalName maps a logical table name to an SQL identifier.
func PhysicalName(prefix, name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(prefix + name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// binaryOrder reports whether key columns need an explicit byte-order collation.
func (c *GormClient) binaryOrder() bool {
	return c.db.Dialector.Name() == "postgres"
}

func (c *GormClient) col(name string) string {
	if c.binaryOrder() {
		return name + ` COLLATE "C"`
	}
	return name
}

type gormTable struct {
	client   *GormClient
	name     string
	physical string
}

func (t *gormTable) Name() string { return t.name }

func (t *gormTable) CreateIfNotExists(ctx context.Context) error {
	if err := t.client.db.WithContext(ctx).Table(t.physical).AutoMigrate(&entityRow{}); err != nil {
		return fmt.Errorf("create table %s: %w", t.name, err)
	}
	return nil
}

func (t *gormTable) Execute(ctx context.Context, op tablestore.Operation) (*tablestore.Entity, error) {
	if err := tablestore.ValidateOperation(op); err != nil {
		return nil, err
	}

	var out *tablestore.Entity
	err := t.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = t.apply(tx, op)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *gormTable) ExecuteBatch(ctx context.Context, ops []tablestore.Operation) ([]*tablestore.Entity, error) {
	if err := tablestore.ValidateBatch(ops); err != nil {
		return nil, err
	}
	for i, op := range ops {
		if err := tablestore.ValidateOperation(op); err != nil {
			return nil, &tablestore.BatchError{Index: i, Op: op.Type, Err: err}
		}
	}

	results := make([]*tablestore.Entity, len(ops))
	err := t.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range ops {
			res, err := t.apply(tx, op)
			if err != nil {
				return &tablestore.BatchError{Index: i, Op: op.Type, Err: err}
			}
			results[i] = res
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (t *gormTable) Retrieve(ctx context.Context, partitionKey, rowKey string) (*tablestore.Entity, error) {
	row, err := t.load(t.client.db.WithContext(ctx), partitionKey, rowKey, false)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, tablestore.ErrNotFound
	}
	return toEntity(row)
}

func (t *gormTable) QuerySegment(ctx context.Context, q tablestore.Query, continuation string) (*tablestore.Segment, error) {
	take := q.Take
	if take <= 0 || take > t.client.pageSize {
		take = t.client.pageSize
	}

	pkCol, rkCol := t.client.col("partition_key"), t.client.col("row_key")
	db := t.client.db.WithContext(ctx).Table(t.physical)
	if q.PartitionKey != "" {
		db = db.Where("partition_key = ?", q.PartitionKey)
	}
	if q.PartitionPrefix != "" {
		db = db.Where("SUBSTR(partition_key, 1, ?) = ?", utf8.RuneCountInString(q.PartitionPrefix), q.PartitionPrefix)
	}
	if continuation != "" {
		after, err := tablestore.DecodeContinuation(continuation)
		if err != nil {
			return nil, err
		}
		db = db.Where(
			fmt.Sprintf("(%s > ? OR (partition_key = ? AND %s > ?))", pkCol, rkCol),
			after.PartitionKey, after.PartitionKey, after.RowKey,
		)
	}

	var rows []entityRow
	err := db.Order(pkCol).Order(rkCol).Limit(take + 1).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}

	seg := &tablestore.Segment{}
	if len(rows) > take {
		rows = rows[:take]
		last := rows[take-1]
		seg.Continuation = tablestore.EncodeContinuation(tablestore.Cursor{PartitionKey: last.PartitionKey, RowKey: last.RowKey})
	}
	seg.Entities = make([]*tablestore.Entity, 0, len(rows))
	for i := range rows {
		e, err := toEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		seg.Entities = append(seg.Entities, e)
	}
	return seg, nil
}

// apply runs op inside tx.
func (t *gormTable) apply(tx *gorm.DB, op tablestore.Operation) (*tablestore.Entity, error) {
	pk, rk := op.Entity.PartitionKey, op.Entity.RowKey

	switch op.Type {
	case tablestore.OpInsert:
		row, err := t.newRow(pk, rk, op.Entity.Properties)
		if err != nil {
			return nil, err
		}
		if err := tx.Table(t.physical).Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, tablestore.ErrEntityExists
			}
			return nil, fmt.Errorf("insert into %s: %w", t.name, err)
		}
		return toEntity(row)

	case tablestore.OpInsertOrReplace:
		row, err := t.newRow(pk, rk, op.Entity.Properties)
		if err != nil {
			return nil, err
		}
		if err := t.upsert(tx, row); err != nil {
			return nil, err
		}
		return toEntity(row)

	case tablestore.OpInsertOrMerge:
		current, err := t.load(tx, pk, rk, true)
		if err != nil {
			return nil, err
		}
		props := op.Entity.Properties
		if current != nil {
			stored, err := tablestore.UnmarshalProperties(current.Properties)
			if err != nil {
				return nil, err
			}
			props = tablestore.MergeProperties(stored, props)
		}
		row, err := t.newRow(pk, rk, props)
		if err != nil {
			return nil, err
		}
		if err := t.upsert(tx, row); err != nil {
			return nil, err
		}
		return toEntity(row)

	case tablestore.OpReplace, tablestore.OpMerge, tablestore.OpDelete:
		current, err := t.load(tx, pk, rk, true)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, tablestore.ErrNotFound
		}
		if !tablestore.ETagMatches(op.Entity.ETag, current.ETag) {
			return nil, tablestore.ErrPreconditionFailed
		}
		if op.Type == tablestore.OpDelete {
			err := tx.Table(t.physical).
				Where("partition_key = ? AND row_key = ?", pk, rk).
				Delete(&entityRow{}).Error
			if err != nil {
				return nil, fmt.Errorf("delete from %s: %w", t.name, err)
			}
			return nil, nil
		}

		props := op.Entity.Properties
		if op.Type == tablestore.OpMerge {
			stored, err := tablestore.UnmarshalProperties(current.Properties)
			if err != nil {
				return nil, err
			}
			props = tablestore.MergeProperties(stored, props)
		}
		row, err := t.newRow(pk, rk, props)
		if err != nil {
			return nil, err
		}
		err = tx.Table(t.physical).
			Where("partition_key = ? AND row_key = ?", pk, rk).
			Updates(map[string]any{
				"etag":       row.ETag,
				"timestamp":  row.Timestamp,
				"properties": row.Properties,
			}).Error
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", t.name, err)
		}
		return toEntity(row)

	default:
		return nil, fmt.Errorf("%w: unknown operation %d", tablestore.ErrInvalidBatch, op.Type)
	}
}

func (t *gormTable) upsert(tx *gorm.DB, row *entityRow) error {
	err := tx.Table(t.physical).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "partition_key"}, {Name: "row_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"etag", "timestamp", "properties"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", t.name, err)
	}
	return nil
}

// load reads one row, or nil when it is absent. lock takes a row lock where
// the dialect supports one.
func (t *gormTable) load(db *gorm.DB, pk, rk string, lock bool) (*entityRow, error) {
	q := db.Table(t.physical).Where("partition_key = ? AND row_key = ?", pk, rk)
	if lock {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var row entityRow
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	return &row, nil
}

func (t *gormTable) newRow(pk, rk string, props tablestore.Properties) (*entityRow, error) {
	norm, err := tablestore.NormalizeProperties(props)
	if err != nil {
		return nil, err
	}
	data, err := tablestore.MarshalProperties(norm)
	if err != nil {
		return nil, err
	}
	return &entityRow{
		PartitionKey: pk,
		RowKey:       rk,
		ETag:         uuid.NewString(),
		Timestamp:    t.client.now().UTC(),
		Properties:   datatypes.JSON(data),
	}, nil
}

func toEntity(row *entityRow) (*tablestore.Entity, error) {
	props, err := tablestore.UnmarshalProperties(row.Properties)
	if err != nil {
		return nil, err
	}
	return &tablestore.Entity{
		PartitionKey: row.PartitionKey,
		RowKey:       row.RowKey,
		ETag:         row.ETag,
		Timestamp:    row.Timestamp.UTC(),
		Properties:   props,
	}, nil
}
