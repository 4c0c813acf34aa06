package tables

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bravo68web/tableidentity/internal/tablestore"
)

// maxTxRetries bounds optimistic transaction retries when a watched key changes.
const maxTxRetries = 16

// Hash fields of an entity key.
const (
	fieldETag       = "etag"
	fieldTimestamp  = "ts"
	fieldProperties = "props"
)

// RedisOption configures a RedisClient.
type RedisOption func(*RedisClient)

// WithRedisPageSize caps the number of entities returned per page.
func WithRedisPageSize(n int) RedisOption {
	return func(c *RedisClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// RedisClient stores entities as hashes and keeps one lexicographically
// ordered sorted set per table for scans. Batches run as WATCH/MULTI
// transactions over the touched entity keys.
type RedisClient struct {
	rdb       redis.UniversalClient
	namespace string
	pageSize  int
	now       func() time.Time
}

// NewRedisClient creates a table client over rdb, prefixing every key with namespace.
func NewRedisClient(rdb redis.UniversalClient, namespace string, opts ...RedisOption) *RedisClient {
	c := &RedisClient{
		rdb:       rdb,
		namespace: namespace,
		pageSize:  tablestore.DefaultPageSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table returns the named table.
func (c *RedisClient) Table(name string) tablestore.Table {
	return &redisTable{client: c, name: name}
}

// TableNames lists the tables registered through CreateIfNotExists.
func (c *RedisClient) TableNames(ctx context.Context) ([]string, error) {
	return c.rdb.SMembers(ctx, c.registryKey()).Result()
}

// DropTable deletes every entity of name along with its index.
func (c *RedisClient) DropTable(ctx context.Context, name string) error {
	t := &redisTable{client: c, name: name}
	for {
		members, err := c.rdb.ZRange(ctx, t.indexKey(), 0, int64(tablestore.MaxBatchSize-1)).Result()
		if err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
		if len(members) == 0 {
			break
		}
		pipe := c.rdb.TxPipeline()
		for _, m := range members {
			pk, rk, err := splitMember(m)
			if err != nil {
				return err
			}
			pipe.Del(ctx, t.entityKey(pk, rk))
			pipe.ZRem(ctx, t.indexKey(), m)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	return c.rdb.SRem(ctx, c.registryKey(), name).Err()
}

func (c *RedisClient) registryKey() string {
	return c.namespace + ":tables"
}

type redisTable struct {
	client *RedisClient
	name   string
}

func (t *redisTable) Name() string { return t.name }

func (t *redisTable) CreateIfNotExists(ctx context.Context) error {
	return t.client.rdb.SAdd(ctx, t.client.registryKey(), t.name).Err()
}

// entityKey is length-prefixed so distinct (pk, rk) pairs never collide.
func (t *redisTable) entityKey(pk, rk string) string {
	return t.client.namespace + ":" + t.name + ":e:" + strconv.Itoa(len(pk)) + ":" + pk + rk
}

func (t *redisTable) indexKey() string {
	return t.client.namespace + ":" + t.name + ":idx"
}

// member encodes (pk, rk) so that lexicographic order of members matches
// (pk, rk) order. Keys never contain NUL.
func member(pk, rk string) string {
	return pk + "\x00" + rk
}

func splitMember(m string) (string, string, error) {
	for i := 0; i < len(m); i++ {
		if m[i] == 0 {
			return m[:i], m[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed index member %q", m)
}

func (t *redisTable) Execute(ctx context.Context, op tablestore.Operation) (*tablestore.Entity, error) {
	if err := tablestore.ValidateOperation(op); err != nil {
		return nil, err
	}
	res, err := t.transact(ctx, []tablestore.Operation{op})
	if err != nil {
		var be *tablestore.BatchError
		if errors.As(err, &be) {
			return nil, be.Err
		}
		return nil, err
	}
	return res[0], nil
}

func (t *redisTable) ExecuteBatch(ctx context.Context, ops []tablestore.Operation) ([]*tablestore.Entity, error) {
	if err := tablestore.ValidateBatch(ops); err != nil {
		return nil, err
	}
	for i, op := range ops {
		if err := tablestore.ValidateOperation(op); err != nil {
			return nil, &tablestore.BatchError{Index: i, Op: op.Type, Err: err}
		}
	}
	return t.transact(ctx, ops)
}

// transact applies ops atomically, retrying when a watched key changes
// between the read and the commit.
func (t *redisTable) transact(ctx context.Context, ops []tablestore.Operation) ([]*tablestore.Entity, error) {
	keys := make([]string, len(ops))
	for i, op := range ops {
		keys[i] = t.entityKey(op.Entity.PartitionKey, op.Entity.RowKey)
	}

	var results []*tablestore.Entity
	txf := func(tx *redis.Tx) error {
		current := make([]*tablestore.Entity, len(ops))
		for i, op := range ops {
			e, err := t.read(ctx, tx, op.Entity.PartitionKey, op.Entity.RowKey)
			if err != nil {
				return err
			}
			current[i] = e
		}

		writes := make([]*tablestore.Entity, len(ops))
		results = make([]*tablestore.Entity, len(ops))
		for i, op := range ops {
			next, err := t.plan(op, current[i])
			if err != nil {
				return &tablestore.BatchError{Index: i, Op: op.Type, Err: err}
			}
			writes[i] = next
			if next != nil {
				results[i] = next.Clone()
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, op := range ops {
				pk, rk := op.Entity.PartitionKey, op.Entity.RowKey
				if writes[i] == nil {
					pipe.Del(ctx, keys[i])
					pipe.ZRem(ctx, t.indexKey(), member(pk, rk))
					continue
				}
				data, err := tablestore.MarshalProperties(writes[i].Properties)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, keys[i],
					fieldETag, writes[i].ETag,
					fieldTimestamp, writes[i].Timestamp.Format(time.RFC3339Nano),
					fieldProperties, data,
				)
				pipe.ZAdd(ctx, t.indexKey(), redis.Z{Score: 0, Member: member(pk, rk)})
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := t.client.rdb.Watch(ctx, txf, keys...)
		if err == nil {
			return results, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%s: transaction retries exhausted", t.name)
}

// plan computes the entity op leaves behind, or nil for a delete.
func (t *redisTable) plan(op tablestore.Operation, current *tablestore.Entity) (*tablestore.Entity, error) {
	var props tablestore.Properties
	switch op.Type {
	case tablestore.OpInsert:
		if current != nil {
			return nil, tablestore.ErrEntityExists
		}
		props = op.Entity.Properties
	case tablestore.OpReplace, tablestore.OpMerge, tablestore.OpDelete:
		if current == nil {
			return nil, tablestore.ErrNotFound
		}
		if !tablestore.ETagMatches(op.Entity.ETag, current.ETag) {
			return nil, tablestore.ErrPreconditionFailed
		}
		if op.Type == tablestore.OpDelete {
			return nil, nil
		}
		props = op.Entity.Properties
		if op.Type == tablestore.OpMerge {
			props = tablestore.MergeProperties(current.Properties, props)
		}
	case tablestore.OpInsertOrReplace:
		props = op.Entity.Properties
	case tablestore.OpInsertOrMerge:
		props = op.Entity.Properties
		if current != nil {
			props = tablestore.MergeProperties(current.Properties, props)
		}
	default:
		return nil, fmt.Errorf("%w: unknown operation %d", tablestore.ErrInvalidBatch, op.Type)
	}

	norm, err := tablestore.NormalizeProperties(props)
	if err != nil {
		return nil, err
	}
	return &tablestore.Entity{
		PartitionKey: op.Entity.PartitionKey,
		RowKey:       op.Entity.RowKey,
		ETag:         uuid.NewString(),
		Timestamp:    t.client.now().UTC(),
		Properties:   norm,
	}, nil
}

// hashReader is satisfied by both the client and a watched transaction.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// read loads one entity through cmd, returning nil when it is absent.
func (t *redisTable) read(ctx context.Context, cmd hashReader, pk, rk string) (*tablestore.Entity, error) {
	fields, err := cmd.HGetAll(ctx, t.entityKey(pk, rk)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeHash(pk, rk, fields)
}

func decodeHash(pk, rk string, fields map[string]string) (*tablestore.Entity, error) {
	props, err := tablestore.UnmarshalProperties([]byte(fields[fieldProperties]))
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[fieldTimestamp])
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", tablestore.ErrInvalidValue, err)
	}
	return &tablestore.Entity{
		PartitionKey: pk,
		RowKey:       rk,
		ETag:         fields[fieldETag],
		Timestamp:    ts,
		Properties:   props,
	}, nil
}

func (t *redisTable) Retrieve(ctx context.Context, partitionKey, rowKey string) (*tablestore.Entity, error) {
	e, err := t.read(ctx, t.client.rdb, partitionKey, rowKey)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, tablestore.ErrNotFound
	}
	return e, nil
}

func (t *redisTable) QuerySegment(ctx context.Context, q tablestore.Query, continuation string) (*tablestore.Segment, error) {
	take := q.Take
	if take <= 0 || take > t.client.pageSize {
		take = t.client.pageSize
	}

	// UTF-8 never contains 0xff, so "\xff" bounds every key with a given prefix.
	start, stop := "-", "+"
	switch {
	case q.PartitionKey != "":
		start, stop = "["+q.PartitionKey+"\x00", "["+q.PartitionKey+"\x00\xff"
	case q.PartitionPrefix != "":
		start, stop = "["+q.PartitionPrefix, "["+q.PartitionPrefix+"\xff"
	}
	if continuation != "" {
		after, err := tablestore.DecodeContinuation(continuation)
		if err != nil {
			return nil, err
		}
		m := member(after.PartitionKey, after.RowKey)
		if start == "-" || m >= start[1:] {
			start = "(" + m
		}
	}

	members, err := t.client.rdb.ZRangeArgs(ctx, redis.ZRangeArgs{
		Key:   t.indexKey(),
		Start: start,
		Stop:  stop,
		ByLex: true,
		Count: int64(take + 1),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}

	seg := &tablestore.Segment{}
	if len(members) > take {
		members = members[:take]
		pk, rk, err := splitMember(members[take-1])
		if err != nil {
			return nil, err
		}
		seg.Continuation = tablestore.EncodeContinuation(tablestore.Cursor{PartitionKey: pk, RowKey: rk})
	}

	pipe := t.client.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	pairs := make([][2]string, len(members))
	for i, m := range members {
		pk, rk, err := splitMember(m)
		if err != nil {
			return nil, err
		}
		pairs[i] = [2]string{pk, rk}
		cmds[i] = pipe.HGetAll(ctx, t.entityKey(pk, rk))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("query %s: %w", t.name, err)
		}
	}

	seg.Entities = make([]*tablestore.Entity, 0, len(members))
	for i, cmd := range cmds {
		fields := cmd.Val()
		// The index member may briefly outlive a deleted entity.
		if len(fields) == 0 {
			continue
		}
		e, err := decodeHash(pairs[i][0], pairs[i][1], fields)
		if err != nil {
			return nil, err
		}
		seg.Entities = append(seg.Entities, e)
	}
	return seg, nil
}
