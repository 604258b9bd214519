package model

import "time"

// SpeedByLine summarizes speed observations for one (line, date) group.
// StdDev is nil when the group has a single observation.
type SpeedByLine struct {
	LineID      int64    `json:"line_id"`
	Date        string   `json:"date"`
	MeanSpeed   float64  `json:"mean_speed"`
	MedianSpeed float64  `json:"median_speed"`
	MaxSpeed    float64  `json:"max_speed"`
	MinSpeed    float64  `json:"min_speed"`
	StdDev      *float64 `json:"std_dev"`
	RecordCount int      `json:"record_count"`
}

// ActiveVehiclesByPeriod counts distinct active vehicles per (date, hour).
type ActiveVehiclesByPeriod struct {
	Date           string       `json:"date"`
	Hour           int          `json:"hour"`
	Period         PeriodOfDay  `json:"period_of_day"`
	DayOfWeek      time.Weekday `json:"day_of_week"`
	UniqueVehicles int          `json:"unique_vehicles"`
	RecordCount    int          `json:"record_count"`
}

// GeographicCoverage describes the spatial footprint of one line on one date.
// Area is the planar bounding-box extent (max-min lat) * (max-min lon) in
// squared degrees, an approximation adequate at metropolitan scale.
type GeographicCoverage struct {
	LineID         int64   `json:"line_id"`
	Date           string  `json:"date"`
	MinLat         float64 `json:"min_lat"`
	MaxLat         float64 `json:"max_lat"`
	MinLon         float64 `json:"min_lon"`
	MaxLon         float64 `json:"max_lon"`
	CentroidLat    float64 `json:"centroid_lat"`
	CentroidLon    float64 `json:"centroid_lon"`
	Area           float64 `json:"area"`
	DistinctPoints int     `json:"distinct_points"`
}

// Severity classifies a grid cell by its mean observed speed.
type Severity string

const (
	SeverityCritical Severity = "critical" // mean < 10 km/h
	SeverityHigh     Severity = "high"     // 10-15
	SeverityModerate Severity = "moderate" // 15-20
	SeverityNormal   Severity = "normal"   // > 20
)

// ClassifySeverity maps a mean speed in km/h to a Severity bucket.
func ClassifySeverity(meanSpeed float64) Severity {
	switch {
	case meanSpeed < 10:
		return SeverityCritical
	case meanSpeed < 15:
		return SeverityHigh
	case meanSpeed < 20:
		return SeverityModerate
	default:
		return SeverityNormal
	}
}

// CriticalSpeedPoint aggregates speed observations snapped to a fixed grid
// cell (0.01 degree edge) for one date. PeakHour is the hour with the lowest
// mean speed in the cell.
type CriticalSpeedPoint struct {
	CellID    string   `json:"cell_id"`
	Date      string   `json:"date"`
	GridLat   float64  `json:"grid_lat"`
	GridLon   float64  `json:"grid_lon"`
	MeanSpeed float64  `json:"mean_speed"`
	PassCount int      `json:"pass_count"`
	Severity  Severity `json:"severity"`
	PeakHour  int      `json:"peak_hour"`
}
