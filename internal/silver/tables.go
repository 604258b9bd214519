package silver

import (
	"context"
	"time"

	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/store"
)

// Table names of the Silver layer.
const (
	TablePositions = "silver_bus_positions"
	TableRoutes    = "silver_routes"
)

const positionsDDL = `
CREATE TABLE IF NOT EXISTS silver_bus_positions (
	vehicle_id    BIGINT NOT NULL,
	line_id       BIGINT,
	latitude      DOUBLE NOT NULL,
	longitude     DOUBLE NOT NULL,
	speed         DOUBLE,
	heading       DOUBLE,
	ts            TIMESTAMP NOT NULL,
	date          VARCHAR NOT NULL,
	hour          INTEGER NOT NULL,
	day_of_week   INTEGER NOT NULL,
	period        VARCHAR NOT NULL,
	quality_score DOUBLE NOT NULL,
	processed_at  TIMESTAMP NOT NULL
)`

const positionsInsert = `
INSERT INTO silver_bus_positions
	(vehicle_id, line_id, latitude, longitude, speed, heading, ts, date, hour, day_of_week, period, quality_score, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const routesDDL = `
CREATE TABLE IF NOT EXISTS silver_routes (
	line         VARCHAR NOT NULL,
	name         VARCHAR,
	day_type     VARCHAR,
	trips        BIGINT,
	distance_km  DOUBLE,
	processed_at TIMESTAMP NOT NULL
)`

const routesInsert = `
INSERT INTO silver_routes (line, name, day_type, trips, distance_km, processed_at)
VALUES (?, ?, ?, ?, ?, ?)`

// WritePositions overwrites the Silver positions table with the given
// snapshot. Each pipeline run replaces the full table.
func WritePositions(ctx context.Context, db *store.DB, records []model.PositionRecord) (int, error) {
	if err := db.Ensure(ctx, positionsDDL); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.VehicleID,
			ptrOrNil(r.LineID),
			r.Latitude,
			r.Longitude,
			ptrOrNil(r.Speed),
			ptrOrNil(r.Heading),
			r.Timestamp.UTC(),
			r.Date,
			r.Hour,
			int(r.DayOfWeek),
			string(r.Period),
			r.QualityScore,
			now,
		})
	}
	return db.Overwrite(ctx, TablePositions, positionsInsert, rows)
}

// WriteRoutes overwrites the routes dimension table.
func WriteRoutes(ctx context.Context, db *store.DB, records []model.RouteRecord) (int, error) {
	if err := db.Ensure(ctx, routesDDL); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.Line,
			nullIfEmpty(r.Name),
			nullIfEmpty(r.DayType),
			ptrOrNil(r.Trips),
			ptrOrNil(r.DistanceKM),
			now,
		})
	}
	return db.Overwrite(ctx, TableRoutes, routesInsert, rows)
}

func ptrOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
