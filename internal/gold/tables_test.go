package gold

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "gold_test.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestComputeWritesAllTables(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	records := []model.PositionRecord{
		pos(31238, i64(6016), f64(5), -19.912, -43.938, "2024-05-10", 18),
		pos(40001, i64(6016), f64(9), -19.909, -43.941, "2024-05-10", 18),
		pos(40001, i64(9250), f64(35), -19.85, -43.90, "2024-05-10", 8),
	}

	res, err := Compute(ctx, db, records)
	require.NoError(t, err)

	assert.Equal(t, 2, res.SpeedByLine)
	assert.Equal(t, 2, res.ActiveVehicles)
	assert.Equal(t, 2, res.GeoCoverage)
	assert.Equal(t, 2, res.CriticalPoints)
	assert.Equal(t, 8, res.Total())

	for _, table := range []string{TableSpeedByLine, TableActiveVehicles, TableGeoCoverage, TableCriticalPoints} {
		n, err := db.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, 2, n, table)
	}
}

func TestComputeOverwritesPriorRun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	big := []model.PositionRecord{
		pos(1, i64(6016), f64(20), -19.9, -43.9, "2024-05-10", 9),
		pos(2, i64(9250), f64(25), -19.8, -43.85, "2024-05-10", 10),
	}
	small := big[:1]

	_, err := Compute(ctx, db, big)
	require.NoError(t, err)
	_, err = Compute(ctx, db, small)
	require.NoError(t, err)

	n, err := db.CountRows(ctx, TableSpeedByLine)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestComputeEmptySnapshot(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	res, err := Compute(ctx, db, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total())

	n, err := db.CountRows(ctx, TableCriticalPoints)
	require.NoError(t, err)
	assert.Zero(t, n)
}
