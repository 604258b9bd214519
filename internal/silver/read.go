package silver

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/store"
)

// ReadPositions loads the current Silver positions snapshot, for downstream
// aggregation.
func ReadPositions(ctx context.Context, db *store.DB) ([]model.PositionRecord, error) {
	rows, err := db.Query(ctx,
		`SELECT vehicle_id, line_id, latitude, longitude, speed, heading, ts, date, hour, day_of_week, period, quality_score
		 FROM `+TablePositions)
	if err != nil {
		return nil, eris.Wrap(err, "silver: read positions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PositionRecord
	for rows.Next() {
		var (
			r              model.PositionRecord
			line           sql.NullInt64
			speed, heading sql.NullFloat64
			ts             time.Time
			dayOfWeek      int
			period         string
		)
		if err := rows.Scan(&r.VehicleID, &line, &r.Latitude, &r.Longitude, &speed, &heading,
			&ts, &r.Date, &r.Hour, &dayOfWeek, &period, &r.QualityScore); err != nil {
			return nil, eris.Wrap(err, "silver: scan position")
		}
		r.LineID = nullInt(line)
		r.Speed = nullFloat(speed)
		r.Heading = nullFloat(heading)
		r.Timestamp = ts
		r.DayOfWeek = time.Weekday(dayOfWeek)
		r.Period = model.PeriodOfDay(period)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "silver: iterate positions")
	}
	return out, nil
}
