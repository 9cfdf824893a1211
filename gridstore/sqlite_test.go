package gridstore

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenSQLiteCreatesTable(t *testing.T) {
	store := newTestSQLiteStore(t)

	var count int
	err := store.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", TableName).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSQLiteStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	inserted, err := store.Insert(ctx, Record{
		Title:     "New Title",
		Category:  "NewType",
		Value:     0,
		ImageRef:  "BakedPotato",
		Deletable: true,
	})
	require.NoError(t, err)
	require.True(t, inserted.Persisted())

	second, err := store.Insert(ctx, Record{Title: "Fondant", Category: "B", Value: 12.5})
	require.NoError(t, err)
	require.Greater(t, second.ID, inserted.ID)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, inserted, all[0])
	require.False(t, all[1].Deletable)

	// Update rewrites the mutable columns only
	changed := all[0]
	changed.Value = 250.5
	changed.Title = "Renamed"
	changed.Deletable = false
	require.NoError(t, store.Update(ctx, changed))

	all, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 250.5, all[0].Value)
	require.Equal(t, "Renamed", all[0].Title)
	require.Equal(t, "NewType", all[0].Category)
	require.True(t, all[0].Deletable, "Deleteable is not a mutable column")

	require.NoError(t, store.Delete(ctx, inserted.ID))
	// Deleting a missing row is not an error
	require.NoError(t, store.Delete(ctx, inserted.ID))

	all, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, second.ID, all[0].ID)
}

func TestSQLiteStoreUpdateMissingRow(t *testing.T) {
	store := newTestSQLiteStore(t)
	require.NoError(t, store.Update(context.Background(), Record{ID: 99, Title: "ghost"}))
}

func TestSQLiteStoreFind(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	for _, rec := range []Record{
		{Title: "Baked", Category: "A", Value: 100, Deletable: false},
		{Title: "Fondant", Category: "A", Value: 50, Deletable: true},
		{Title: "Soup", Category: "B", Value: 50, Deletable: true},
	} {
		_, err := store.Insert(ctx, rec)
		require.NoError(t, err)
	}

	found, err := store.Find(ctx, Filter{ColCategory: "A"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, "Baked", found[0].Title)

	found, err = store.Find(ctx, Filter{"type": "A", ColDeletable: true})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Fondant", found[0].Title)

	found, err = store.Find(ctx, Filter{ColValue: 50.0})
	require.NoError(t, err)
	require.Len(t, found, 2)

	_, err = store.Find(ctx, Filter{"colour": "yellow"})
	require.ErrorIs(t, err, ErrUnknownColumn)
}

func TestSQLiteStoreOpensLegacyTable(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	// First releases created the table with an upper-case ID column and seeded a numeric ImageSource
	_, err = db.Exec(`CREATE TABLE PotatoDBTable (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		TITLE TEXT, TYPE TEXT, VALUE DOUBLE, ImageSource TEXT, Deleteable INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO PotatoDBTable (TITLE, TYPE, VALUE, ImageSource, Deleteable) VALUES ('A', 'yellow', 100, 100, 1)`)
	require.NoError(t, err)

	store, err := NewSQLiteStore(db, nil)
	require.NoError(t, err)

	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "100", all[0].ImageRef)
	require.Equal(t, 100.0, all[0].Value)
	require.True(t, all[0].Deletable)
}

func TestSQLiteStoreRejectsForeignTable(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE PotatoDBTable (Id INTEGER PRIMARY KEY, TITLE TEXT)`)
	require.NoError(t, err)

	_, err = NewSQLiteStore(db, nil)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestSQLiteStoreClosedIsUnavailable(t *testing.T) {
	store, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.LoadAll(context.Background())
	require.Error(t, err)
	require.True(t, IsUnavailable(err), "closed database should be reported as unavailable: %v", err)
}

func TestSeedIfEmpty(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	seeds := []Record{{Title: "Baked Potato", Value: 100, ImageRef: "BakedPotato", Deletable: false}}

	n, err := SeedIfEmpty(ctx, store, seeds, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Second call leaves a populated table alone
	n, err = SeedIfEmpty(ctx, store, seeds, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.False(t, all[0].Deletable)
	require.Equal(t, "Baked Potato", all[0].Title)
}
