package model

import (
	"time"
)

// Source identifies a configured ingestion source.
type Source string

const (
	SourceRealtime Source = "realtime_positions"
	SourceRoutes   Source = "operational_routes"
)

// RawRecord is one decoded wire-format line as ingested into the Bronze
// layer. Fields that were absent from the line, or that failed numeric
// coercion, are nil. RawRecords are immutable once written.
type RawRecord struct {
	EventCode *int64     `json:"event_code"`
	Timestamp *time.Time `json:"timestamp"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	VehicleID *int64     `json:"vehicle_id"`
	Speed     *float64   `json:"speed"`
	LineID    *int64     `json:"line_id"`
	Heading   *float64   `json:"heading"`
	Status    *int64     `json:"status"`
	Odometer  *float64   `json:"odometer"`

	IngestedAt time.Time `json:"ingested_at"`
	Source     Source    `json:"source"`
}

// RouteRecord is one row of the operational routes (MCO) dataset.
type RouteRecord struct {
	Line       string   `json:"line"`
	Name       string   `json:"name"`
	DayType    string   `json:"day_type"`
	Trips      *int64   `json:"trips"`
	DistanceKM *float64 `json:"distance_km"`

	IngestedAt time.Time `json:"ingested_at"`
	Source     Source    `json:"source"`
}

// PeriodOfDay buckets the hour of day into four operational periods.
type PeriodOfDay string

const (
	PeriodDawn      PeriodOfDay = "dawn"      // 00-05
	PeriodMorning   PeriodOfDay = "morning"   // 06-11
	PeriodAfternoon PeriodOfDay = "afternoon" // 12-17
	PeriodEvening   PeriodOfDay = "evening"   // 18-23
)

// ClassifyPeriod maps an hour of day (0-23) to its PeriodOfDay.
func ClassifyPeriod(hour int) PeriodOfDay {
	switch {
	case hour < 6:
		return PeriodDawn
	case hour < 12:
		return PeriodMorning
	case hour < 18:
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}

// PositionRecord is a validated, enriched vehicle position in the Silver
// layer. Latitude/longitude are WGS84 and guaranteed inside the metropolitan
// bounding box; (VehicleID, Timestamp) is unique within a snapshot.
type PositionRecord struct {
	VehicleID int64     `json:"vehicle_id"`
	LineID    *int64    `json:"line_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed"`
	Heading   *float64  `json:"heading"`
	Timestamp time.Time `json:"timestamp"`

	Date         string       `json:"date"` // YYYY-MM-DD, derived from Timestamp
	Hour         int          `json:"hour"`
	DayOfWeek    time.Weekday `json:"day_of_week"`
	Period       PeriodOfDay  `json:"period_of_day"`
	QualityScore float64      `json:"quality_score"`
}
