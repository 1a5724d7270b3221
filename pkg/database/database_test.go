package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendhub/pkg/database"
	"lendhub/pkg/docstore"
)

type loan struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Copies int    `json:"copies"`
}

func openMigratedSQLite(t *testing.T) *docstore.SQL {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "lendhub.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, err := database.Migrate(db, database.DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	// a second run is a no-op
	_, err = database.Migrate(db, database.DriverSQLite)
	require.NoError(t, err)

	store, err := docstore.NewSQL(db, database.DriverSQLite, docstore.SQLite)
	require.NoError(t, err)
	return store
}

func TestSQLiteDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMigratedSQLite(t)

	doc, err := store.Insert(ctx, "loans", "l1", loan{ID: "l1", Status: "pending", Copies: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)

	_, err = store.Insert(ctx, "loans", "l1", loan{ID: "l1"})
	assert.ErrorIs(t, err, docstore.ErrAlreadyExists)

	version, err := store.Update(ctx, "loans", "l1", docstore.Fields{"status": "approved"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = store.Update(ctx, "loans", "l1", docstore.Fields{"status": "rejected"}, 1)
	assert.ErrorIs(t, err, docstore.ErrConcurrencyConflict)

	got, err := store.Get(ctx, "loans", "l1")
	require.NoError(t, err)
	var l loan
	require.NoError(t, got.Decode(&l))
	assert.Equal(t, "approved", l.Status)
	assert.Equal(t, 1, l.Copies)
}

func TestSQLiteQueryAndBatchDelete(t *testing.T) {
	ctx := context.Background()
	store := openMigratedSQLite(t)

	require.NoError(t, store.PutBatch(ctx, "loans", []docstore.Record{
		{ID: "a", Value: loan{ID: "a", Status: "pending", Copies: 1}},
		{ID: "b", Value: loan{ID: "b", Status: "approved", Copies: 1}},
		{ID: "c", Value: loan{ID: "c", Status: "pending", Copies: 2}},
	}))

	docs, err := store.Query(ctx, "loans", docstore.Filter{"status": "pending", "copies": 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)

	n, err := store.BatchDelete(ctx, "loans", []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docs, err = store.Query(ctx, "loans", nil)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := database.Open(context.Background(), database.Config{Driver: "oracle"})
	assert.Error(t, err)

	_, err = database.Open(context.Background(), database.Config{Driver: database.DriverPostgres})
	assert.Error(t, err)
}
