package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

const testDDL = `CREATE TABLE IF NOT EXISTS readings (id BIGINT, value DOUBLE)`
const testInsert = `INSERT INTO readings (id, value) VALUES (?, ?)`

func TestOverwrite_ReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Ensure(ctx, testDDL))

	n, err := db.Overwrite(ctx, "readings", testInsert, [][]any{{1, 1.5}, {2, 2.5}, {3, 3.5}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// A second overwrite replaces, not accumulates.
	n, err = db.Overwrite(ctx, "readings", testInsert, [][]any{{9, 9.9}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := db.CountRows(ctx, "readings")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAppend_Accumulates(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Ensure(ctx, testDDL))

	_, err := db.Append(ctx, "readings", testInsert, [][]any{{1, 1.0}})
	require.NoError(t, err)
	_, err = db.Append(ctx, "readings", testInsert, [][]any{{2, 2.0}})
	require.NoError(t, err)

	count, err := db.CountRows(ctx, "readings")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHasTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	ok, err := db.HasTable(ctx, "readings")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Ensure(ctx, testDDL))
	ok, err = db.HasTable(ctx, "readings")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOverwrite_MissingTableIsStorageError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Overwrite(ctx, "missing", `INSERT INTO missing VALUES (?)`, [][]any{{1}})
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "missing", serr.Table)
}
