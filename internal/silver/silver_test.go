package silver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhtransit/mobility-pipeline/internal/bronze"
	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/store"
	"github.com/bhtransit/mobility-pipeline/internal/wire"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "silver_test.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadRawPositionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	asOf := time.Date(2024, 5, 10, 21, 17, 20, 0, time.UTC)

	ts := time.Date(2024, 5, 10, 18, 17, 20, 0, wire.FeedZone)
	raw := model.RawRecord{
		EventCode:  i64(105),
		Timestamp:  &ts,
		Latitude:   f64(-19.912),
		Longitude:  f64(-43.940),
		VehicleID:  i64(31238),
		Speed:      f64(25),
		LineID:     i64(6016),
		IngestedAt: asOf,
		Source:     model.SourceRealtime,
	}
	sparse := model.RawRecord{
		Timestamp:  &ts,
		Latitude:   f64(-19.9),
		Longitude:  f64(-43.9),
		VehicleID:  i64(7),
		IngestedAt: asOf,
		Source:     model.SourceRealtime,
	}

	w := bronze.NewWriter(root)
	path, err := w.WritePositions(ctx, bronze.DatasetPositions, []model.RawRecord{raw, sparse}, asOf)
	require.NoError(t, err)

	db := openTestDB(t)
	got, err := LoadRawPositions(ctx, db, path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(31238), *got[0].VehicleID)
	assert.Equal(t, int64(6016), *got[0].LineID)
	assert.InDelta(t, -19.912, *got[0].Latitude, 1e-9)
	assert.True(t, got[0].Timestamp.Equal(ts))
	assert.Equal(t, model.SourceRealtime, got[0].Source)

	assert.Nil(t, got[1].EventCode)
	assert.Nil(t, got[1].Speed)
	assert.Nil(t, got[1].LineID)
}

func TestLoadRawRoutesRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	asOf := time.Now().UTC().Truncate(time.Second)

	routes := []model.RouteRecord{
		{Line: "6016", Name: "Vila Maria / Centro", DayType: "util", Trips: i64(42), DistanceKM: f64(18.5), IngestedAt: asOf, Source: model.SourceRoutes},
		{Line: "9250", IngestedAt: asOf, Source: model.SourceRoutes},
	}

	w := bronze.NewWriter(root)
	path, err := w.WriteRoutes(ctx, bronze.DatasetRoutes, routes, asOf)
	require.NoError(t, err)

	db := openTestDB(t)
	got, err := LoadRawRoutes(ctx, db, path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "6016", got[0].Line)
	assert.Equal(t, "Vila Maria / Centro", got[0].Name)
	assert.Equal(t, int64(42), *got[0].Trips)
	assert.Empty(t, got[1].Name)
	assert.Nil(t, got[1].Trips)
}

func TestWritePositionsOverwrites(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	ts := time.Date(2024, 5, 10, 18, 0, 0, 0, wire.FeedZone)
	rec := model.PositionRecord{
		VehicleID: 31238, LineID: i64(6016),
		Latitude: -19.912, Longitude: -43.940,
		Speed: f64(25), Timestamp: ts,
		Date: "2024-05-10", Hour: 18, DayOfWeek: time.Friday,
		Period: model.PeriodEvening, QualityScore: 0.8,
	}

	n, err := WritePositions(ctx, db, []model.PositionRecord{rec, rec, rec})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = WritePositions(ctx, db, []model.PositionRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := db.CountRows(ctx, TablePositions)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWriteRoutesOverwrites(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	routes := []model.RouteRecord{{Line: "6016", Trips: i64(10)}}

	_, err := WriteRoutes(ctx, db, routes)
	require.NoError(t, err)
	_, err = WriteRoutes(ctx, db, routes)
	require.NoError(t, err)

	count, err := db.CountRows(ctx, TableRoutes)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
