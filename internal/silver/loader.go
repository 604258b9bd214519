package silver

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/store"
)

// LoadRawPositions reads a Bronze positions parquet file back into raw
// records, using DuckDB's parquet reader instead of a second parquet
// decoding path.
func LoadRawPositions(ctx context.Context, db *store.DB, path string) ([]model.RawRecord, error) {
	query := `SELECT event_code, ts, latitude, longitude, vehicle_id, speed,
		line_id, heading, status, odometer, ingested_at, source
	FROM read_parquet('` + escapePath(path) + `')`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "silver: read bronze positions %s", path)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RawRecord
	for rows.Next() {
		var (
			event, vehicle, line, status  sql.NullInt64
			lat, lon, speed, heading, odo sql.NullFloat64
			ts                            sql.NullTime
			ingested                      time.Time
			source                        string
		)
		if err := rows.Scan(&event, &ts, &lat, &lon, &vehicle, &speed,
			&line, &heading, &status, &odo, &ingested, &source); err != nil {
			return nil, eris.Wrap(err, "silver: scan bronze position")
		}
		out = append(out, model.RawRecord{
			EventCode:  nullInt(event),
			Timestamp:  nullTime(ts),
			Latitude:   nullFloat(lat),
			Longitude:  nullFloat(lon),
			VehicleID:  nullInt(vehicle),
			Speed:      nullFloat(speed),
			LineID:     nullInt(line),
			Heading:    nullFloat(heading),
			Status:     nullInt(status),
			Odometer:   nullFloat(odo),
			IngestedAt: ingested,
			Source:     model.Source(source),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "silver: iterate bronze positions")
	}
	return out, nil
}

// LoadRawRoutes reads a Bronze routes parquet file back into route records.
func LoadRawRoutes(ctx context.Context, db *store.DB, path string) ([]model.RouteRecord, error) {
	query := `SELECT line, name, day_type, trips, distance_km, ingested_at, source
	FROM read_parquet('` + escapePath(path) + `')`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "silver: read bronze routes %s", path)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RouteRecord
	for rows.Next() {
		var (
			line, source  string
			name, dayType sql.NullString
			trips         sql.NullInt64
			distance      sql.NullFloat64
			ingested      time.Time
		)
		if err := rows.Scan(&line, &name, &dayType, &trips, &distance, &ingested, &source); err != nil {
			return nil, eris.Wrap(err, "silver: scan bronze route")
		}
		out = append(out, model.RouteRecord{
			Line:       line,
			Name:       name.String,
			DayType:    dayType.String,
			Trips:      nullInt(trips),
			DistanceKM: nullFloat(distance),
			IngestedAt: ingested,
			Source:     model.Source(source),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "silver: iterate bronze routes")
	}
	return out, nil
}

// escapePath quotes a path for embedding in a single-quoted SQL literal.
// read_parquet does not accept a bound parameter for its argument in all
// driver versions, so the path is inlined.
func escapePath(p string) string {
	return strings.ReplaceAll(p, "'", "''")
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
