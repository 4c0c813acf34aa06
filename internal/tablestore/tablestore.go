// Package tablestore defines the partitioned key-value table contract the
// identity store is built on, plus an in-memory implementation of it.
//
// A table holds entities addressed by (partition key, row key). The contract
// offers point reads, atomic batches confined to one partition, optimistic
// concurrency through ETags, and ordered scans paged by continuation tokens.
// There are no secondary indexes, unique constraints, or cross-partition
// transactions.
package tablestore

import (
	"context"
	"time"
)

const (
	// MaxBatchSize is the largest number of operations one batch may carry.
	MaxBatchSize = 100

	// DefaultPageSize is the page size used when a query does not set Take.
	DefaultPageSize = 1000

	// ETagAny matches every version of an entity.
	ETagAny = "*"

	// MaxKeySize is the largest partition or row key, in bytes.
	MaxKeySize = 1024
)

// MinDateTime is the earliest timestamp a table can hold.
var MinDateTime = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// Properties is the flat property bag of an entity. Values are limited to
// string, bool, int64, float64, time.Time, []byte and nil.
type Properties map[string]any

// Entity is a single row.
type Entity struct {
	PartitionKey string
	RowKey       string
	// ETag is the version tag assigned by the store on every write.
	ETag string
	// Timestamp is the time of the last write, maintained by the store.
	Timestamp  time.Time
	Properties Properties
}

// Clone returns a deep enough copy for callers to mutate freely.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Properties = make(Properties, len(e.Properties))
	for k, v := range e.Properties {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		c.Properties[k] = v
	}
	return &c
}

// OperationType enumerates table write operations.
type OperationType int

const (
	// OpInsert fails with ErrEntityExists when the key is taken.
	OpInsert OperationType = iota
	// OpReplace overwrites an existing entity, honouring its ETag.
	OpReplace
	// OpMerge updates the given properties of an existing entity, honouring its ETag.
	OpMerge
	// OpInsertOrReplace upserts, overwriting all properties.
	OpInsertOrReplace
	// OpInsertOrMerge upserts, keeping properties not present in the request.
	OpInsertOrMerge
	// OpDelete removes an existing entity, honouring its ETag.
	OpDelete
)

func (t OperationType) String() string {
	switch t {
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	case OpMerge:
		return "merge"
	case OpInsertOrReplace:
		return "insert-or-replace"
	case OpInsertOrMerge:
		return "insert-or-merge"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is one write against a table.
type Operation struct {
	Type   OperationType
	Entity *Entity
}

// Insert builds an insert operation.
func Insert(e *Entity) Operation { return Operation{Type: OpInsert, Entity: e} }

// Replace builds a replace operation.
func Replace(e *Entity) Operation { return Operation{Type: OpReplace, Entity: e} }

// Merge builds a merge operation.
func Merge(e *Entity) Operation { return Operation{Type: OpMerge, Entity: e} }

// InsertOrReplace builds an insert-or-replace operation.
func InsertOrReplace(e *Entity) Operation { return Operation{Type: OpInsertOrReplace, Entity: e} }

// InsertOrMerge builds an insert-or-merge operation.
func InsertOrMerge(e *Entity) Operation { return Operation{Type: OpInsertOrMerge, Entity: e} }

// Delete builds a delete operation for the entity's key and ETag.
func Delete(e *Entity) Operation { return Operation{Type: OpDelete, Entity: e} }

// DeleteKey builds a delete that ignores the stored version.
func DeleteKey(pk, rk string) Operation {
	return Delete(&Entity{PartitionKey: pk, RowKey: rk, ETag: ETagAny})
}

// Query selects a range of entities. An empty query scans the whole table.
type Query struct {
	// PartitionKey restricts the scan to one partition when set.
	PartitionKey string
	// PartitionPrefix restricts the scan to partitions starting with the prefix.
	PartitionPrefix string
	// Take caps the page size. Zero means DefaultPageSize.
	Take int
}

// Segment is one page of query results.
type Segment struct {
	Entities []*Entity
	// Continuation resumes the scan; empty when there is nothing left.
	Continuation string
}

// Table is a single named table.
//
// Implementations must be safe for concurrent use.
type Table interface {
	Name() string
	CreateIfNotExists(ctx context.Context) error
	// Execute runs one operation and returns the stored entity with its new
	// ETag, or nil for deletes.
	Execute(ctx context.Context, op Operation) (*Entity, error)
	// ExecuteBatch runs up to MaxBatchSize operations against a single
	// partition atomically. On failure nothing is applied and the error is a
	// *BatchError naming the failing operation.
	ExecuteBatch(ctx context.Context, ops []Operation) ([]*Entity, error)
	// Retrieve reads one entity, returning ErrNotFound when it is absent.
	Retrieve(ctx context.Context, partitionKey, rowKey string) (*Entity, error)
	// QuerySegment returns one page of q, starting at the continuation token.
	QuerySegment(ctx context.Context, q Query, continuation string) (*Segment, error)
}

// Client hands out table references. References are cheap and immutable.
type Client interface {
	Table(name string) Table
}
