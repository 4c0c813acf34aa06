package indexing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/identity"
	"github.com/bravo68web/tableidentity/internal/tablestore"
)

type row struct {
	PK, RK string
	Props  tablestore.Properties
}

func snapshotTable(t *testing.T, tbl tablestore.Table) []row {
	t.Helper()
	all, err := tablestore.QueryAll(context.Background(), tbl, tablestore.Query{})
	require.NoError(t, err)
	out := make([]row, len(all))
	for i, e := range all {
		out[i] = row{PK: e.PartitionKey, RK: e.RowKey, Props: e.Properties}
	}
	return out
}

func truncate(t *testing.T, tbl tablestore.Table) {
	t.Helper()
	ctx := context.Background()
	all, err := tablestore.QueryAll(ctx, tbl, tablestore.Query{})
	require.NoError(t, err)
	for _, e := range all {
		_, err := tbl.Execute(ctx, tablestore.DeleteKey(e.PartitionKey, e.RowKey))
		require.NoError(t, err)
	}
}

func seed(t *testing.T, n int) (*tablestore.MemoryClient, *identity.Store) {
	t.Helper()
	mem := tablestore.NewMemoryClient(tablestore.WithPageSize(17))
	s := identity.New(mem, identity.DefaultTables())
	ctx := context.Background()
	for i := 0; i < n; i++ {
		u := models.NewUser(fmt.Sprintf("user%03d", i))
		if i%2 == 0 {
			u.Email = fmt.Sprintf("user%03d@x.com", i)
		}
		require.NoError(t, s.Create(ctx, u))
		require.NoError(t, s.AddLogin(ctx, u, models.LoginInfo{LoginProvider: "Google", ProviderKey: fmt.Sprintf("g/%d", i)}))
	}
	return mem, s
}

func TestRebuildUsernames_Backfills(t *testing.T) {
	mem, s := seed(t, 230)
	ctx := context.Background()
	names := identity.DefaultTables()
	truncate(t, mem.Table(names.UsernameIndex))

	missing, err := s.FindByUsername(ctx, "user042")
	require.NoError(t, err)
	assert.Nil(t, missing)

	b := NewBuilder(mem, names, nil)
	st, err := b.RebuildUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 230, st.Scanned)
	assert.Equal(t, 230, st.Written)

	found, err := s.FindByUsername(ctx, "user042")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "user042", found.UserName)
}

func TestRebuild_IsIdempotent(t *testing.T) {
	mem, _ := seed(t, 120)
	ctx := context.Background()
	names := identity.DefaultTables()
	b := NewBuilder(mem, names, nil)

	for _, table := range []string{names.UsernameIndex, names.EmailIndex, names.LoginProviderKeyIndex} {
		truncate(t, mem.Table(table))
	}

	_, err := b.RebuildAll(ctx)
	require.NoError(t, err)
	once := map[string][]row{}
	for _, table := range []string{names.UsernameIndex, names.EmailIndex, names.LoginProviderKeyIndex} {
		once[table] = snapshotTable(t, mem.Table(table))
	}

	stats, err := b.RebuildAll(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	for table, want := range once {
		assert.Equal(t, want, snapshotTable(t, mem.Table(table)), table)
	}

	assert.Len(t, once[names.UsernameIndex], 120)
	assert.Len(t, once[names.EmailIndex], 60)
	assert.Len(t, once[names.LoginProviderKeyIndex], 120)
	assert.Equal(t, 60, stats[1].Skipped)
}

func TestRebuildLogins_RestoresFindByLogin(t *testing.T) {
	mem, s := seed(t, 3)
	ctx := context.Background()
	names := identity.DefaultTables()
	truncate(t, mem.Table(names.LoginProviderKeyIndex))

	login := models.LoginInfo{LoginProvider: "Google", ProviderKey: "g/1"}
	u, err := s.FindByLogin(ctx, login)
	require.NoError(t, err)
	assert.Nil(t, u)

	_, err = NewBuilder(mem, names, nil).Rebuild(ctx, IndexLogin)
	require.NoError(t, err)

	u, err = s.FindByLogin(ctx, login)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "user001", u.UserName)
}

func TestParseIndex(t *testing.T) {
	idx, err := ParseIndex("email")
	require.NoError(t, err)
	assert.Equal(t, IndexEmail, idx)

	_, err = ParseIndex("phone")
	assert.Error(t, err)
}
