package gridsession

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/potatogrid/go-potatogrid/gridstore"
)

// countingStore records every call that reaches the wrapped store and can fail chosen statements
type countingStore struct {
	gridstore.Store

	mu           sync.Mutex
	calls        []string
	failUpdateID int64
	failDeleteID int64
	failInsert   bool
	failLoad     bool
	// failLoadAfterInsert makes every load fail once an insert has succeeded
	failLoadAfterInsert bool
}

func (c *countingStore) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *countingStore) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *countingStore) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

func (c *countingStore) LoadAll(ctx context.Context) ([]gridstore.Record, error) {
	c.record("load")
	if c.failLoad {
		return nil, fmt.Errorf("%w: disk gone", gridstore.ErrUnavailable)
	}
	return c.Store.LoadAll(ctx)
}

func (c *countingStore) Update(ctx context.Context, rec gridstore.Record) error {
	c.record(fmt.Sprintf("update %d", rec.ID))
	if c.failUpdateID != 0 && rec.ID == c.failUpdateID {
		return fmt.Errorf("%w: database is locked", gridstore.ErrUnavailable)
	}
	return c.Store.Update(ctx, rec)
}

func (c *countingStore) Delete(ctx context.Context, id int64) error {
	c.record(fmt.Sprintf("delete %d", id))
	if c.failDeleteID != 0 && id == c.failDeleteID {
		return fmt.Errorf("%w: database is locked", gridstore.ErrUnavailable)
	}
	return c.Store.Delete(ctx, id)
}

func (c *countingStore) Insert(ctx context.Context, rec gridstore.Record) (gridstore.Record, error) {
	c.record("insert")
	if c.failInsert {
		return gridstore.Record{}, fmt.Errorf("%w: disk full", gridstore.ErrUnavailable)
	}
	inserted, err := c.Store.Insert(ctx, rec)
	if err == nil && c.failLoadAfterInsert {
		c.failLoad = true
	}
	return inserted, err
}

// newSeededStore returns an in-memory store holding rows with ids 1..n
func newSeededStore(t *testing.T, n int) *countingStore {
	t.Helper()
	store, err := gridstore.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for i := 1; i <= n; i++ {
		rec, err := store.Insert(context.Background(), gridstore.Record{
			Title:     fmt.Sprintf("Recipe %d", i),
			Category:  "Baked",
			Value:     float64(i * 10),
			ImageRef:  "BakedPotato",
			Deletable: true,
		})
		require.NoError(t, err)
		require.Equal(t, int64(i), rec.ID)
	}
	return &countingStore{Store: store}
}

func rowByID(t *testing.T, rows []Row, id int64) Row {
	t.Helper()
	for _, row := range rows {
		if row.ID == id {
			return row
		}
	}
	t.Fatalf("row with id %d not found", id)
	return Row{}
}
