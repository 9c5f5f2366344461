package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection/internal/models"
	"inspection/internal/storage"
	"inspection/internal/storage/storagetest"
)

// setupTestDB opens a fresh database in a temporary directory
func setupTestDB(t *testing.T) *SQLiteDB {
	t.Helper()

	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Initialize(context.Background()))
	return db
}

func TestSQLiteDB_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return setupTestDB(t)
	})
}

func TestSQLiteDB_InitializeTwice(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Initialize(context.Background()))
}

func TestSQLiteDB_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	db, err := NewSQLiteDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Initialize(ctx))

	rec := storagetest.NewRecord("Corredor A Térreo", "Sala 07", "2025-07-02", models.Departure, 0, "file-1")
	require.NoError(t, db.Upsert(ctx, rec))
	require.NoError(t, db.Close())

	reopened, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Initialize(ctx))

	slots, err := reopened.Lookup(ctx, rec.Key())
	require.NoError(t, err)
	storagetest.AssertRecord(t, rec, slots.Departure)
}

func TestSQLiteDB_ClosedDatabaseIsUnavailable(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize(ctx))
	require.NoError(t, db.Close())

	rec := storagetest.NewRecord("Corredor A Térreo", "Sala 07", "2025-07-02", models.Arrival, 0, "file-1")
	assert.ErrorIs(t, db.Upsert(ctx, rec), storage.ErrUnavailable)

	_, err = db.Lookup(ctx, rec.Key())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
