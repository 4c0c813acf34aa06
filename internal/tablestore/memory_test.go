package tablestore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entity(pk, rk string, props Properties) *Entity {
	return &Entity{PartitionKey: pk, RowKey: rk, Properties: props}
}

func TestMemoryTable_InsertConflict(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryClient().Table("users")

	stored, err := tbl.Execute(ctx, Insert(entity("a", "a", Properties{"Name": "alice"})))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ETag)
	assert.False(t, stored.Timestamp.IsZero())

	_, err = tbl.Execute(ctx, Insert(entity("a", "a", Properties{"Name": "other"})))
	assert.ErrorIs(t, err, ErrEntityExists)
	assert.True(t, IsConflict(err))

	got, err := tbl.Retrieve(ctx, "a", "a")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Properties["Name"])
}

func TestMemoryTable_ETagSemantics(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryClient().Table("users")

	first, err := tbl.Execute(ctx, Insert(entity("p", "r", Properties{"Count": 1})))
	require.NoError(t, err)

	second, err := tbl.Execute(ctx, Replace(&Entity{PartitionKey: "p", RowKey: "r", ETag: first.ETag, Properties: Properties{"Count": 2}}))
	require.NoError(t, err)
	assert.NotEqual(t, first.ETag, second.ETag)

	_, err = tbl.Execute(ctx, Replace(&Entity{PartitionKey: "p", RowKey: "r", ETag: first.ETag, Properties: Properties{"Count": 3}}))
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	_, err = tbl.Execute(ctx, Delete(&Entity{PartitionKey: "p", RowKey: "r", ETag: first.ETag}))
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	_, err = tbl.Execute(ctx, DeleteKey("p", "r"))
	require.NoError(t, err)

	_, err = tbl.Retrieve(ctx, "p", "r")
	assert.True(t, IsNotFound(err))

	_, err = tbl.Execute(ctx, DeleteKey("p", "r"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTable_MergeKeepsUnsetProperties(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryClient().Table("users")

	_, err := tbl.Execute(ctx, Insert(entity("p", "r", Properties{"A": "a", "B": "b"})))
	require.NoError(t, err)

	_, err = tbl.Execute(ctx, Merge(&Entity{PartitionKey: "p", RowKey: "r", ETag: ETagAny, Properties: Properties{"B": "bb"}}))
	require.NoError(t, err)
	got, err := tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, Properties{"A": "a", "B": "bb"}, got.Properties)

	_, err = tbl.Execute(ctx, InsertOrReplace(entity("p", "r", Properties{"C": "c"})))
	require.NoError(t, err)
	got, err = tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, Properties{"C": "c"}, got.Properties)

	_, err = tbl.Execute(ctx, InsertOrMerge(entity("p", "r", Properties{"D": int32(4)})))
	require.NoError(t, err)
	got, err = tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, Properties{"C": "c", "D": int64(4)}, got.Properties)
}

func TestMemoryTable_RetrieveReturnsCopy(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryClient().Table("users")
	_, err := tbl.Execute(ctx, Insert(entity("p", "r", Properties{"Name": "x"})))
	require.NoError(t, err)

	got, err := tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	got.Properties["Name"] = "mutated"

	again, err := tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Properties["Name"])
}

func TestMemoryTable_BatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryClient().Table("claims")

	_, err := tbl.Execute(ctx, Insert(entity("u1", "existing", nil)))
	require.NoError(t, err)

	_, err = tbl.ExecuteBatch(ctx, []Operation{
		Insert(entity("u1", "a", nil)),
		InsertOrReplace(entity("u1", "existing", Properties{"V": "changed"})),
		Insert(entity("u1", "b", nil)),
		Delete(&Entity{PartitionKey: "u1", RowKey: "missing", ETag: ETagAny}),
	})
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 3, batchErr.Index)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := QueryAll(ctx, tbl, Query{PartitionKey: "u1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "existing", all[0].RowKey)
	assert.Empty(t, all[0].Properties)
}

func TestValidateBatch(t *testing.T) {
	tooMany := make([]Operation, MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = Insert(entity("p", fmt.Sprintf("r%03d", i), nil))
	}

	tests := []struct {
		name string
		ops  []Operation
	}{
		{name: "empty", ops: nil},
		{name: "too many", ops: tooMany},
		{name: "spans partitions", ops: []Operation{Insert(entity("p1", "r", nil)), Insert(entity("p2", "r", nil))}},
		{name: "repeated row key", ops: []Operation{Insert(entity("p", "r", nil)), DeleteKey("p", "r")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateBatch(tc.ops)
			assert.ErrorIs(t, err, ErrInvalidBatch)
		})
	}

	assert.NoError(t, ValidateBatch(tooMany[:MaxBatchSize]))
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{key: "", valid: true},
		{key: "alice", valid: true},
		{key: "alice@example.com", valid: true},
		{key: "a/b", valid: false},
		{key: `a\b`, valid: false},
		{key: "a#b", valid: false},
		{key: "a?b", valid: false},
		{key: "a\tb", valid: false},
		{key: "a\u0085b", valid: false},
		{key: string(make([]byte, MaxKeySize+1)), valid: false},
	}
	for _, tc := range tests {
		err := ValidateKey(tc.key)
		if tc.valid {
			assert.NoError(t, err, "key %q", tc.key)
		} else {
			assert.ErrorIs(t, err, ErrInvalidKey, "key %q", tc.key)
		}
	}
}

func TestMemoryTable_RejectsInvalidEntities(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryClient().Table("users")

	_, err := tbl.Execute(ctx, Insert(entity("a/b", "r", nil)))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = tbl.Execute(ctx, Insert(entity("p", "r", Properties{"When": time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)})))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = tbl.Execute(ctx, Insert(entity("p", "r", Properties{"Bad": struct{}{}})))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestMemoryTable_QueryPaging(t *testing.T) {
	ctx := context.Background()
	tbl := NewMemoryClient(WithPageSize(3)).Table("index")

	for _, pk := range []string{"carol", "alice", "bob", "alfred", "albert", "dave", "al"} {
		_, err := tbl.Execute(ctx, Insert(entity(pk, pk, nil)))
		require.NoError(t, err)
	}

	seg, err := tbl.QuerySegment(ctx, Query{}, "")
	require.NoError(t, err)
	assert.Len(t, seg.Entities, 3)
	assert.NotEmpty(t, seg.Continuation)

	var order []string
	require.NoError(t, ScanAll(ctx, tbl, Query{}, func(e *Entity) error {
		order = append(order, e.PartitionKey)
		return nil
	}))
	assert.Equal(t, []string{"al", "albert", "alfred", "alice", "bob", "carol", "dave"}, order)

	prefixed, err := QueryAll(ctx, tbl, Query{PartitionPrefix: "al"})
	require.NoError(t, err)
	assert.Len(t, prefixed, 4)

	var seen int
	require.NoError(t, ScanAll(ctx, tbl, Query{}, func(*Entity) error {
		seen++
		if seen == 2 {
			return ErrStopScan
		}
		return nil
	}))
	assert.Equal(t, 2, seen)

	boom := errors.New("boom")
	assert.ErrorIs(t, ScanAll(ctx, tbl, Query{}, func(*Entity) error { return boom }), boom)

	_, err = tbl.QuerySegment(ctx, Query{}, "%%%")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestMemoryTable_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tbl := NewMemoryClient().Table("users")

	_, err := tbl.Execute(ctx, Insert(entity("p", "r", nil)))
	assert.ErrorIs(t, err, context.Canceled)
}
