package tablestore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryOption configures a MemoryClient.
type MemoryOption func(*MemoryClient)

// WithPageSize caps the number of entities returned per QuerySegment call.
func WithPageSize(n int) MemoryOption {
	return func(c *MemoryClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithClock overrides the clock used for entity timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryClient) {
		if now != nil {
			c.now = now
		}
	}
}

// MemoryClient keeps every table in process memory. Tables spring into
// existence on first use.
type MemoryClient struct {
	mu       sync.Mutex
	tables   map[string]*memoryTable
	pageSize int
	now      func() time.Time
	version  atomic.Uint64
}

// NewMemoryClient creates an empty in-memory table client.
func NewMemoryClient(opts ...MemoryOption) *MemoryClient {
	c := &MemoryClient{
		tables:   make(map[string]*memoryTable),
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table returns the named table.
func (c *MemoryClient) Table(name string) Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		t = &memoryTable{name: name, client: c, rows: make(map[rowID]*Entity)}
		c.tables[name] = t
	}
	return t
}

// TableNames lists the tables touched so far, sorted.
func (c *MemoryClient) TableNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *MemoryClient) nextETag() string {
	return `W/"` + strconv.FormatUint(c.version.Add(1), 10) + `"`
}

type rowID struct {
	pk, rk string
}

type memoryTable struct {
	name   string
	client *MemoryClient

	mu   sync.RWMutex
	rows map[rowID]*Entity
}

func (t *memoryTable) Name() string { return t.name }

func (t *memoryTable) CreateIfNotExists(ctx context.Context) error {
	return ctx.Err()
}

func (t *memoryTable) Execute(ctx context.Context, op Operation) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateOperation(op); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apply(op)
}

func (t *memoryTable) ExecuteBatch(ctx context.Context, ops []Operation) ([]*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateBatch(ops); err != nil {
		return nil, err
	}
	for i, op := range ops {
		if err := ValidateOperation(op); err != nil {
			return nil, &BatchError{Index: i, Op: op.Type, Err: err}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Undo log restoring the previous state of every touched row on failure.
	undo := make(map[rowID]*Entity, len(ops))
	results := make([]*Entity, len(ops))
	for i, op := range ops {
		id := rowID{op.Entity.PartitionKey, op.Entity.RowKey}
		undo[id] = t.rows[id]

		res, err := t.apply(op)
		if err != nil {
			for id, prev := range undo {
				if prev == nil {
					delete(t.rows, id)
				} else {
					t.rows[id] = prev
				}
			}
			return nil, &BatchError{Index: i, Op: op.Type, Err: err}
		}
		results[i] = res
	}
	return results, nil
}

func (t *memoryTable) Retrieve(ctx context.Context, partitionKey, rowKey string) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.rows[rowID{partitionKey, rowKey}]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (t *memoryTable) QuerySegment(ctx context.Context, q Query, continuation string) (*Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var after *Cursor
	if continuation != "" {
		c, err := DecodeContinuation(continuation)
		if err != nil {
			return nil, err
		}
		after = &c
	}
	take := q.Take
	if take <= 0 || take > t.client.pageSize {
		take = t.client.pageSize
	}

	t.mu.RLock()
	matched := make([]*Entity, 0)
	for id, e := range t.rows {
		if !q.Matches(id.pk) {
			continue
		}
		if after != nil && !after.Before(id.pk, id.rk) {
			continue
		}
		matched = append(matched, e)
	}
	t.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].PartitionKey != matched[j].PartitionKey {
			return matched[i].PartitionKey < matched[j].PartitionKey
		}
		return matched[i].RowKey < matched[j].RowKey
	})

	seg := &Segment{}
	if len(matched) > take {
		last := matched[take-1]
		seg.Continuation = EncodeContinuation(Cursor{PartitionKey: last.PartitionKey, RowKey: last.RowKey})
		matched = matched[:take]
	}
	seg.Entities = make([]*Entity, len(matched))
	for i, e := range matched {
		seg.Entities[i] = e.Clone()
	}
	return seg, nil
}

// apply runs op against the row map. Callers hold t.mu.
func (t *memoryTable) apply(op Operation) (*Entity, error) {
	id := rowID{op.Entity.PartitionKey, op.Entity.RowKey}
	current, exists := t.rows[id]

	var props Properties
	switch op.Type {
	case OpInsert:
		if exists {
			return nil, ErrEntityExists
		}
		props = op.Entity.Properties
	case OpReplace, OpMerge, OpDelete:
		if !exists {
			return nil, ErrNotFound
		}
		if !ETagMatches(op.Entity.ETag, current.ETag) {
			return nil, ErrPreconditionFailed
		}
		if op.Type == OpDelete {
			delete(t.rows, id)
			return nil, nil
		}
		props = op.Entity.Properties
		if op.Type == OpMerge {
			props = MergeProperties(current.Properties, props)
		}
	case OpInsertOrReplace:
		props = op.Entity.Properties
	case OpInsertOrMerge:
		props = op.Entity.Properties
		if exists {
			props = MergeProperties(current.Properties, props)
		}
	default:
		return nil, fmt.Errorf("%w: unknown operation %d", ErrInvalidBatch, op.Type)
	}

	norm, err := NormalizeProperties(props)
	if err != nil {
		return nil, err
	}
	stored := &Entity{
		PartitionKey: id.pk,
		RowKey:       id.rk,
		ETag:         t.client.nextETag(),
		Timestamp:    t.client.now().UTC(),
		Properties:   norm,
	}
	t.rows[id] = stored
	return stored.Clone(), nil
}

// ETagMatches reports whether a requested ETag accepts the stored one.
// An empty request or ETagAny matches every version.
func ETagMatches(requested, stored string) bool {
	return requested == "" || requested == ETagAny || requested == stored
}

// Matches reports whether a partition key falls inside the query's range.
func (q Query) Matches(partitionKey string) bool {
	if q.PartitionKey != "" && partitionKey != q.PartitionKey {
		return false
	}
	return strings.HasPrefix(partitionKey, q.PartitionPrefix)
}

// DropTable forgets the named table and its rows.
func (c *MemoryClient) DropTable(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, name)
	return ctx.Err()
}
