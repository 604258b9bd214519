package gold

import (
	"context"
	"time"

	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/store"
)

// Table names of the Gold layer.
const (
	TableSpeedByLine    = "gold_speed_by_line"
	TableActiveVehicles = "gold_active_vehicles"
	TableGeoCoverage    = "gold_geo_coverage"
	TableCriticalPoints = "gold_critical_points"
)

const speedDDL = `
CREATE TABLE IF NOT EXISTS gold_speed_by_line (
	line_id      BIGINT NOT NULL,
	date         VARCHAR NOT NULL,
	mean_speed   DOUBLE NOT NULL,
	median_speed DOUBLE NOT NULL,
	max_speed    DOUBLE NOT NULL,
	min_speed    DOUBLE NOT NULL,
	std_dev      DOUBLE,
	record_count BIGINT NOT NULL,
	computed_at  TIMESTAMP NOT NULL
)`

const speedInsert = `
INSERT INTO gold_speed_by_line
	(line_id, date, mean_speed, median_speed, max_speed, min_speed, std_dev, record_count, computed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const activeDDL = `
CREATE TABLE IF NOT EXISTS gold_active_vehicles (
	date            VARCHAR NOT NULL,
	hour            INTEGER NOT NULL,
	period          VARCHAR NOT NULL,
	day_of_week     INTEGER NOT NULL,
	unique_vehicles BIGINT NOT NULL,
	record_count    BIGINT NOT NULL,
	computed_at     TIMESTAMP NOT NULL
)`

const activeInsert = `
INSERT INTO gold_active_vehicles
	(date, hour, period, day_of_week, unique_vehicles, record_count, computed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

const coverageDDL = `
CREATE TABLE IF NOT EXISTS gold_geo_coverage (
	line_id         BIGINT NOT NULL,
	date            VARCHAR NOT NULL,
	min_lat         DOUBLE NOT NULL,
	max_lat         DOUBLE NOT NULL,
	min_lon         DOUBLE NOT NULL,
	max_lon         DOUBLE NOT NULL,
	centroid_lat    DOUBLE NOT NULL,
	centroid_lon    DOUBLE NOT NULL,
	area            DOUBLE NOT NULL,
	distinct_points BIGINT NOT NULL,
	computed_at     TIMESTAMP NOT NULL
)`

const coverageInsert = `
INSERT INTO gold_geo_coverage
	(line_id, date, min_lat, max_lat, min_lon, max_lon, centroid_lat, centroid_lon, area, distinct_points, computed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const criticalDDL = `
CREATE TABLE IF NOT EXISTS gold_critical_points (
	cell_id     VARCHAR NOT NULL,
	date        VARCHAR NOT NULL,
	grid_lat    DOUBLE NOT NULL,
	grid_lon    DOUBLE NOT NULL,
	mean_speed  DOUBLE NOT NULL,
	pass_count  BIGINT NOT NULL,
	severity    VARCHAR NOT NULL,
	peak_hour   INTEGER NOT NULL,
	computed_at TIMESTAMP NOT NULL
)`

const criticalInsert = `
INSERT INTO gold_critical_points
	(cell_id, date, grid_lat, grid_lon, mean_speed, pass_count, severity, peak_hour, computed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Result reports per-table row counts of one Gold computation.
type Result struct {
	SpeedByLine    int `json:"speed_by_line" yaml:"speed_by_line"`
	ActiveVehicles int `json:"active_vehicles" yaml:"active_vehicles"`
	GeoCoverage    int `json:"geo_coverage" yaml:"geo_coverage"`
	CriticalPoints int `json:"critical_points" yaml:"critical_points"`
}

// Total returns the number of aggregate rows written.
func (r Result) Total() int {
	return r.SpeedByLine + r.ActiveVehicles + r.GeoCoverage + r.CriticalPoints
}

// Compute derives all four aggregate tables from the Silver snapshot and
// overwrites them. An empty snapshot yields empty tables, not an error.
func Compute(ctx context.Context, db *store.DB, records []model.PositionRecord) (Result, error) {
	var res Result
	now := time.Now().UTC()

	n, err := writeSpeed(ctx, db, SpeedByLine(records), now)
	if err != nil {
		return res, err
	}
	res.SpeedByLine = n

	n, err = writeActive(ctx, db, ActiveVehicles(records), now)
	if err != nil {
		return res, err
	}
	res.ActiveVehicles = n

	n, err = writeCoverage(ctx, db, Coverage(records), now)
	if err != nil {
		return res, err
	}
	res.GeoCoverage = n

	n, err = writeCritical(ctx, db, CriticalPoints(records), now)
	if err != nil {
		return res, err
	}
	res.CriticalPoints = n

	return res, nil
}

func writeSpeed(ctx context.Context, db *store.DB, aggs []model.SpeedByLine, now time.Time) (int, error) {
	if err := db.Ensure(ctx, speedDDL); err != nil {
		return 0, err
	}
	rows := make([][]any, 0, len(aggs))
	for _, a := range aggs {
		var sd any
		if a.StdDev != nil {
			sd = *a.StdDev
		}
		rows = append(rows, []any{a.LineID, a.Date, a.MeanSpeed, a.MedianSpeed, a.MaxSpeed, a.MinSpeed, sd, a.RecordCount, now})
	}
	return db.Overwrite(ctx, TableSpeedByLine, speedInsert, rows)
}

func writeActive(ctx context.Context, db *store.DB, aggs []model.ActiveVehiclesByPeriod, now time.Time) (int, error) {
	if err := db.Ensure(ctx, activeDDL); err != nil {
		return 0, err
	}
	rows := make([][]any, 0, len(aggs))
	for _, a := range aggs {
		rows = append(rows, []any{a.Date, a.Hour, string(a.Period), int(a.DayOfWeek), a.UniqueVehicles, a.RecordCount, now})
	}
	return db.Overwrite(ctx, TableActiveVehicles, activeInsert, rows)
}

func writeCoverage(ctx context.Context, db *store.DB, aggs []model.GeographicCoverage, now time.Time) (int, error) {
	if err := db.Ensure(ctx, coverageDDL); err != nil {
		return 0, err
	}
	rows := make([][]any, 0, len(aggs))
	for _, a := range aggs {
		rows = append(rows, []any{a.LineID, a.Date, a.MinLat, a.MaxLat, a.MinLon, a.MaxLon, a.CentroidLat, a.CentroidLon, a.Area, a.DistinctPoints, now})
	}
	return db.Overwrite(ctx, TableGeoCoverage, coverageInsert, rows)
}

func writeCritical(ctx context.Context, db *store.DB, aggs []model.CriticalSpeedPoint, now time.Time) (int, error) {
	if err := db.Ensure(ctx, criticalDDL); err != nil {
		return 0, err
	}
	rows := make([][]any, 0, len(aggs))
	for _, a := range aggs {
		rows = append(rows, []any{a.CellID, a.Date, a.GridLat, a.GridLon, a.MeanSpeed, a.PassCount, string(a.Severity), a.PeakHour, now})
	}
	return db.Overwrite(ctx, TableCriticalPoints, criticalInsert, rows)
}
