package tables

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bravo68web/tableidentity/internal/infrastructure/database"
	"github.com/bravo68web/tableidentity/internal/tablestore"
)

// clientFactory opens a client whose pages hold at most pageSize entities.
type clientFactory func(t *testing.T, pageSize int) tablestore.Client

func backends(t *testing.T) map[string]clientFactory {
	t.Helper()
	out := map[string]clientFactory{
		"memory": func(t *testing.T, pageSize int) tablestore.Client {
			return tablestore.NewMemoryClient(tablestore.WithPageSize(pageSize))
		},
		"sqlite": func(t *testing.T, pageSize int) tablestore.Client {
			dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
			db, err := database.Open(context.Background(), sqlite.Open(dsn), database.Options{
				MaxOpenConns: 1,
				LogLevel:     gormlogger.Silent,
			}, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return NewGormClient(db.DB(), "t_", WithGormPageSize(pageSize))
		},
	}

	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T, pageSize int) tablestore.Client {
			db, err := database.Open(context.Background(), postgres.Open(dsn), database.Options{LogLevel: gormlogger.Silent}, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return NewGormClient(db.DB(), "t"+strings.ReplaceAll(uuid.NewString()[:8], "-", "")+"_", WithGormPageSize(pageSize))
		}
	}
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		out["redis"] = func(t *testing.T, pageSize int) tablestore.Client {
			rdb := goredis.NewClient(&goredis.Options{Addr: addr})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisClient(rdb, "test-"+uuid.NewString(), WithRedisPageSize(pageSize))
		}
	}
	return out
}

// openTable creates a fresh table and drops it when the test ends.
func openTable(t *testing.T, c tablestore.Client, name string) tablestore.Table {
	t.Helper()
	ctx := context.Background()
	tbl := c.Table(name)
	require.NoError(t, tbl.CreateIfNotExists(ctx))
	require.NoError(t, tbl.CreateIfNotExists(ctx), "create must be idempotent")
	if d, ok := c.(Dropper); ok {
		t.Cleanup(func() { _ = d.DropTable(context.Background(), name) })
	}
	return tbl
}

func entity(pk, rk string, props tablestore.Properties) *tablestore.Entity {
	return &tablestore.Entity{PartitionKey: pk, RowKey: rk, Properties: props}
}

func TestConformance(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("InsertRetrieveConflict", func(t *testing.T) { testInsertRetrieve(t, open(t, 100)) })
			t.Run("ETagConcurrency", func(t *testing.T) { testETags(t, open(t, 100)) })
			t.Run("MergeAndUpsert", func(t *testing.T) { testMerge(t, open(t, 100)) })
			t.Run("BatchAtomic", func(t *testing.T) { testBatch(t, open(t, 100)) })
			t.Run("OrderedPaging", func(t *testing.T) { testPaging(t, open(t, 3)) })
			t.Run("PropertyTypes", func(t *testing.T) { testPropertyTypes(t, open(t, 100)) })
		})
	}
}

func testInsertRetrieve(t *testing.T, c tablestore.Client) {
	ctx := context.Background()
	tbl := openTable(t, c, "things")

	stored, err := tbl.Execute(ctx, tablestore.Insert(entity("p", "r", tablestore.Properties{"Name": "a"})))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ETag)

	got, err := tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Properties["Name"])
	assert.Equal(t, stored.ETag, got.ETag)

	_, err = tbl.Execute(ctx, tablestore.Insert(entity("p", "r", nil)))
	assert.True(t, tablestore.IsConflict(err), "got %v", err)

	_, err = tbl.Retrieve(ctx, "p", "missing")
	assert.True(t, tablestore.IsNotFound(err))

	_, err = tbl.Execute(ctx, tablestore.DeleteKey("p", "missing"))
	assert.True(t, tablestore.IsNotFound(err))

	_, err = tbl.Execute(ctx, tablestore.Insert(entity("a/b", "r", nil)))
	assert.ErrorIs(t, err, tablestore.ErrInvalidKey)

	_, err = tbl.Execute(ctx, tablestore.DeleteKey("p", "r"))
	require.NoError(t, err)
	_, err = tbl.Retrieve(ctx, "p", "r")
	assert.True(t, tablestore.IsNotFound(err))
}

func testETags(t *testing.T, c tablestore.Client) {
	ctx := context.Background()
	tbl := openTable(t, c, "versions")

	v1, err := tbl.Execute(ctx, tablestore.Insert(entity("p", "r", tablestore.Properties{"N": int64(1)})))
	require.NoError(t, err)

	next := entity("p", "r", tablestore.Properties{"N": int64(2)})
	next.ETag = v1.ETag
	v2, err := tbl.Execute(ctx, tablestore.Replace(next))
	require.NoError(t, err)
	assert.NotEqual(t, v1.ETag, v2.ETag)

	stale := entity("p", "r", tablestore.Properties{"N": int64(3)})
	stale.ETag = v1.ETag
	_, err = tbl.Execute(ctx, tablestore.Replace(stale))
	assert.ErrorIs(t, err, tablestore.ErrPreconditionFailed)

	stale.ETag = tablestore.ETagAny
	_, err = tbl.Execute(ctx, tablestore.Replace(stale))
	require.NoError(t, err)

	del := entity("p", "r", nil)
	del.ETag = v2.ETag
	_, err = tbl.Execute(ctx, tablestore.Delete(del))
	assert.ErrorIs(t, err, tablestore.ErrPreconditionFailed)

	_, err = tbl.Execute(ctx, tablestore.Replace(entity("p", "nope", nil)))
	assert.True(t, tablestore.IsNotFound(err))
}

func testMerge(t *testing.T, c tablestore.Client) {
	ctx := context.Background()
	tbl := openTable(t, c, "merges")

	_, err := tbl.Execute(ctx, tablestore.InsertOrMerge(entity("p", "r", tablestore.Properties{"A": "1", "B": "1"})))
	require.NoError(t, err)
	_, err = tbl.Execute(ctx, tablestore.InsertOrMerge(entity("p", "r", tablestore.Properties{"B": "2", "C": "2"})))
	require.NoError(t, err)

	got, err := tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, tablestore.Properties{"A": "1", "B": "2", "C": "2"}, got.Properties)

	_, err = tbl.Execute(ctx, tablestore.Merge(entity("p", "r", tablestore.Properties{"A": "3"})))
	require.NoError(t, err)
	got, err = tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, "3", got.Properties["A"])
	assert.Equal(t, "2", got.Properties["C"])

	_, err = tbl.Execute(ctx, tablestore.InsertOrReplace(entity("p", "r", tablestore.Properties{"Z": "z"})))
	require.NoError(t, err)
	got, err = tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, tablestore.Properties{"Z": "z"}, got.Properties)
}

func testBatch(t *testing.T, c tablestore.Client) {
	ctx := context.Background()
	tbl := openTable(t, c, "batches")

	_, err := tbl.Execute(ctx, tablestore.Insert(entity("p", "taken", nil)))
	require.NoError(t, err)

	_, err = tbl.ExecuteBatch(ctx, []tablestore.Operation{
		tablestore.Insert(entity("p", "fresh", nil)),
		tablestore.Insert(entity("p", "taken", nil)),
	})
	var be *tablestore.BatchError
	require.True(t, errors.As(err, &be), "got %v", err)
	assert.Equal(t, 1, be.Index)
	assert.True(t, tablestore.IsConflict(err))

	_, err = tbl.Retrieve(ctx, "p", "fresh")
	assert.True(t, tablestore.IsNotFound(err), "failed batch must not apply earlier operations")

	_, err = tbl.ExecuteBatch(ctx, []tablestore.Operation{
		tablestore.Insert(entity("p", "x", nil)),
		tablestore.Insert(entity("q", "y", nil)),
	})
	assert.ErrorIs(t, err, tablestore.ErrInvalidBatch)

	ops := make([]tablestore.Operation, tablestore.MaxBatchSize)
	for i := range ops {
		ops[i] = tablestore.InsertOrReplace(entity("p", fmt.Sprintf("row%03d", i), tablestore.Properties{"I": int64(i)}))
	}
	res, err := tbl.ExecuteBatch(ctx, ops)
	require.NoError(t, err)
	assert.Len(t, res, tablestore.MaxBatchSize)

	_, err = tbl.ExecuteBatch(ctx, append(ops, tablestore.Insert(entity("p", "extra", nil))))
	assert.ErrorIs(t, err, tablestore.ErrInvalidBatch)
}

func testPaging(t *testing.T, c tablestore.Client) {
	ctx := context.Background()
	tbl := openTable(t, c, "pages")

	pks := []string{"b", "a_x", "a", "ab", "a_y"}
	for _, pk := range pks {
		for _, rk := range []string{"2", "1", ""} {
			_, err := tbl.Execute(ctx, tablestore.Insert(entity(pk, rk, nil)))
			require.NoError(t, err)
		}
	}

	all, err := tablestore.QueryAll(ctx, tbl, tablestore.Query{})
	require.NoError(t, err)
	require.Len(t, all, 15)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		ordered := prev.PartitionKey < cur.PartitionKey ||
			(prev.PartitionKey == cur.PartitionKey && prev.RowKey < cur.RowKey)
		assert.True(t, ordered, "%s/%s before %s/%s", prev.PartitionKey, prev.RowKey, cur.PartitionKey, cur.RowKey)
	}

	seg, err := tbl.QuerySegment(ctx, tablestore.Query{}, "")
	require.NoError(t, err)
	assert.Len(t, seg.Entities, 3)
	assert.NotEmpty(t, seg.Continuation)

	part, err := tablestore.QueryAll(ctx, tbl, tablestore.Query{PartitionKey: "a"})
	require.NoError(t, err)
	assert.Len(t, part, 3)

	prefixed, err := tablestore.QueryAll(ctx, tbl, tablestore.Query{PartitionPrefix: "a_"})
	require.NoError(t, err)
	require.Len(t, prefixed, 6)
	for _, e := range prefixed {
		assert.True(t, strings.HasPrefix(e.PartitionKey, "a_"))
	}

	_, err = tbl.QuerySegment(ctx, tablestore.Query{}, "not a token")
	assert.ErrorIs(t, err, tablestore.ErrInvalidValue)
}

func testPropertyTypes(t *testing.T, c tablestore.Client) {
	ctx := context.Background()
	tbl := openTable(t, c, "types")

	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	props := tablestore.Properties{
		"S":   "text",
		"B":   true,
		"I":   int64(1 << 40),
		"F":   1.5,
		"T":   when,
		"Bin": []byte{0, 1, 2},
		"Nil": nil,
	}
	_, err := tbl.Execute(ctx, tablestore.Insert(entity("p", "r", props)))
	require.NoError(t, err)

	got, err := tbl.Retrieve(ctx, "p", "r")
	require.NoError(t, err)
	assert.Equal(t, "text", got.Properties["S"])
	assert.Equal(t, true, got.Properties["B"])
	assert.Equal(t, int64(1<<40), got.Properties["I"])
	assert.Equal(t, 1.5, got.Properties["F"])
	assert.True(t, when.Equal(got.Properties["T"].(time.Time)))
	assert.Equal(t, []byte{0, 1, 2}, got.Properties["Bin"])
	assert.Nil(t, got.Properties["Nil"])

	_, err = tbl.Execute(ctx, tablestore.Insert(entity("p", "bad", tablestore.Properties{"T": time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)})))
	assert.ErrorIs(t, err, tablestore.ErrInvalidValue)
}

func TestPhysicalName(t *testing.T) {
	assert.Equal(t, "ts_userindexitems", PhysicalName("ts_", "userIndexItems"))
	assert.Equal(t, "ts_a_b", PhysicalName("ts_", "a-b"))
}
