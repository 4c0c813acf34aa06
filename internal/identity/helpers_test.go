package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/tablestore"
)

var errInjected = errors.New("injected failure")

// faultyTable wraps a table and fails the operations its predicates select.
type faultyTable struct {
	tablestore.Table

	mu        sync.Mutex
	execErr   func(op tablestore.Operation) error
	batchErr  func(ops []tablestore.Operation) error
	execCalls int
}

func (f *faultyTable) Execute(ctx context.Context, op tablestore.Operation) (*tablestore.Entity, error) {
	f.mu.Lock()
	f.execCalls++
	fail := f.execErr
	f.mu.Unlock()
	if fail != nil {
		if err := fail(op); err != nil {
			return nil, err
		}
	}
	return f.Table.Execute(ctx, op)
}

func (f *faultyTable) ExecuteBatch(ctx context.Context, ops []tablestore.Operation) ([]*tablestore.Entity, error) {
	f.mu.Lock()
	fail := f.batchErr
	f.mu.Unlock()
	if fail != nil {
		if err := fail(ops); err != nil {
			return nil, &tablestore.BatchError{Index: 0, Op: ops[0].Type, Err: err}
		}
	}
	return f.Table.ExecuteBatch(ctx, ops)
}

func failType(t tablestore.OperationType) func(tablestore.Operation) error {
	return func(op tablestore.Operation) error {
		if op.Type == t {
			return errInjected
		}
		return nil
	}
}

func failAll(_ []tablestore.Operation) error { return errInjected }

// faultyClient hands out faulty wrappers for the configured table names.
type faultyClient struct {
	*tablestore.MemoryClient
	faults map[string]*faultyTable
}

func (c *faultyClient) Table(name string) tablestore.Table {
	t := c.MemoryClient.Table(name)
	if f, ok := c.faults[name]; ok {
		f.Table = t
		return f
	}
	return t
}

func newTestStore(t *testing.T, faults map[string]*faultyTable, opts ...tablestore.MemoryOption) (*Store, *tablestore.MemoryClient) {
	t.Helper()
	mem := tablestore.NewMemoryClient(opts...)
	client := &faultyClient{MemoryClient: mem, faults: faults}
	s := New(client, DefaultTables())
	require.NoError(t, s.EnsureTables(context.Background()))
	return s, mem
}

func createUser(t *testing.T, s *Store, username, email string) *models.User {
	t.Helper()
	u := models.NewUser(username)
	u.Email = email
	require.NoError(t, s.Create(context.Background(), u))
	return u
}

func rowExists(t *testing.T, mem *tablestore.MemoryClient, table, pk, rk string) bool {
	t.Helper()
	_, err := mem.Table(table).Retrieve(context.Background(), pk, rk)
	if tablestore.IsNotFound(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func countRows(t *testing.T, mem *tablestore.MemoryClient, table string) int {
	t.Helper()
	all, err := tablestore.QueryAll(context.Background(), mem.Table(table), tablestore.Query{})
	require.NoError(t, err)
	return len(all)
}
