package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/identity"
	"github.com/bravo68web/tableidentity/internal/infrastructure/storage"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
)

func seedStore(t *testing.T, client tablestore.Client, n int) {
	t.Helper()
	ctx := context.Background()
	s := identity.New(client, identity.DefaultTables())
	for i := 0; i < n; i++ {
		u := models.NewUser(fmt.Sprintf("user%02d", i))
		u.Email = fmt.Sprintf("user%02d@example.com", i)
		require.NoError(t, s.Create(ctx, u))
		require.NoError(t, s.AddToRole(ctx, u, "Admin"))
		require.NoError(t, s.AddClaim(ctx, u, models.Claim{Type: "scope", Value: "read"}))
		require.NoError(t, s.AddLogin(ctx, u, models.LoginInfo{LoginProvider: "GitHub", ProviderKey: fmt.Sprint(i)}))
	}
}

type row struct {
	PK, RK string
	Props  tablestore.Properties
}

func dump(t *testing.T, client tablestore.Client, table string) []row {
	t.Helper()
	all, err := tablestore.QueryAll(context.Background(), client.Table(table), tablestore.Query{})
	require.NoError(t, err)
	out := make([]row, len(all))
	for i, e := range all {
		out[i] = row{e.PartitionKey, e.RowKey, e.Properties}
	}
	return out
}

func newManager(t *testing.T, client tablestore.Client, dir string) *Manager {
	t.Helper()
	fs, err := storage.NewFilesystemStorage(dir)
	require.NoError(t, err)
	return NewManager(client, fs, identity.DefaultTables().Names(), nil)
}

func TestExportRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := tablestore.NewMemoryClient(tablestore.WithPageSize(7))
	seedStore(t, src, 25)

	manifest, err := newManager(t, src, dir).Export(ctx, "full.jsonl")
	require.NoError(t, err)
	names := identity.DefaultTables()
	assert.Equal(t, 25, manifest.Counts[names.Users])
	assert.Equal(t, 25, manifest.Counts[names.EmailIndex])

	dst := tablestore.NewMemoryClient()
	restored, err := newManager(t, dst, dir).Restore(ctx, "full.jsonl")
	require.NoError(t, err)
	assert.Equal(t, manifest.Counts, restored.Counts)

	for _, table := range names.Names() {
		assert.Equal(t, dump(t, src, table), dump(t, dst, table), table)
	}

	// The restored tables serve lookups.
	s := identity.New(dst, names)
	u, err := s.FindByEmail(ctx, "user07@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "user07", u.UserName)
	roles, err := s.GetRoles(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin"}, roles)
}

func TestExport_DefaultName(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, tablestore.NewMemoryClient(), t.TempDir())

	manifest, err := m.Export(ctx, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(manifest.Name, "identity-"))

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, manifest.Name, list[0].Name)
}

func TestRestore_RejectsTruncatedSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := tablestore.NewMemoryClient()
	seedStore(t, src, 3)
	_, err := newManager(t, src, dir).Export(ctx, "cut.jsonl")
	require.NoError(t, err)

	fs, err := storage.NewFilesystemStorage(dir)
	require.NoError(t, err)
	r, err := fs.Open(ctx, "cut.jsonl")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	lines := strings.SplitAfter(strings.TrimSuffix(string(data), "\n"), "\n")
	w, err := fs.Create(ctx, "cut.jsonl")
	require.NoError(t, err)
	_, err = io.WriteString(w, strings.Join(lines[:len(lines)-1], ""))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = newManager(t, tablestore.NewMemoryClient(), dir).Restore(ctx, "cut.jsonl")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRestore_Missing(t *testing.T) {
	_, err := newManager(t, tablestore.NewMemoryClient(), t.TempDir()).Restore(context.Background(), "nope.jsonl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestore_UnknownTable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := storage.NewFilesystemStorage(dir)
	require.NoError(t, err)
	w, err := fs.Create(ctx, "odd.jsonl")
	require.NoError(t, err)
	_, err = io.WriteString(w, `{"kind":"header","version":1,"tables":["secrets"],"pk":"","rk":""}`+"\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = NewManager(tablestore.NewMemoryClient(), fs, identity.DefaultTables().Names(), nil).Restore(ctx, "odd.jsonl")
	assert.ErrorIs(t, err, ErrCorrupt)
}

// age sets the modification times of the named snapshots an hour apart,
// oldest first.
func age(t *testing.T, dir string, names ...string) {
	t.Helper()
	base := time.Now().Add(-time.Duration(len(names)) * time.Hour)
	for i, name := range names {
		mt := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(filepath.Join(dir, name), mt, mt))
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, tablestore.NewMemoryClient(), t.TempDir())
	_, err := m.Export(ctx, "a.jsonl")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "a.jsonl"))
	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, m.Delete(ctx, "a.jsonl"), ErrNotFound)
}

func TestPrune_KeepsNewest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newManager(t, tablestore.NewMemoryClient(), dir)
	for _, name := range []string{"c.jsonl", "a.jsonl", "b.jsonl"} {
		_, err := m.Export(ctx, name)
		require.NoError(t, err)
	}
	age(t, dir, "c.jsonl", "a.jsonl", "b.jsonl")

	removed, err := m.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.jsonl", "a.jsonl"}, removed)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b.jsonl", list[0].Name)

	removed, err = m.Prune(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestPrune_RejectsZero(t *testing.T) {
	_, err := newManager(t, tablestore.NewMemoryClient(), t.TempDir()).Prune(context.Background(), 0)
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestExport_Retain(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := storage.NewFilesystemStorage(dir)
	require.NoError(t, err)
	m := NewManager(tablestore.NewMemoryClient(), fs, identity.DefaultTables().Names(), nil, WithRetain(2))

	for _, name := range []string{"one.jsonl", "two.jsonl"} {
		_, err := m.Export(ctx, name)
		require.NoError(t, err)
	}
	age(t, dir, "one.jsonl", "two.jsonl")

	_, err = m.Export(ctx, "three.jsonl")
	require.NoError(t, err)

	list, err := m.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, info := range list {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"three.jsonl", "two.jsonl"}, names)
}
