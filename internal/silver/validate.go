// Package silver is the validation and enrichment layer. It consumes the
// latest Bronze snapshot, applies schema and business-rule validation,
// deduplicates, derives calendar and quality features, and overwrites the
// Silver tables with the cleaned snapshot.
package silver

import (
	"math"

	"go.uber.org/zap"

	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/wire"
)

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether the point lies inside the box (inclusive).
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// MetropolitanBounds is the Belo Horizonte metropolitan bounding box.
// Positions outside it are GPS noise, not buses.
var MetropolitanBounds = Bounds{
	MinLat: -20.1, MaxLat: -19.7,
	MinLon: -44.15, MaxLon: -43.8,
}

// Speed limits in km/h. Urban buses do not legitimately exceed 120.
const (
	minSpeed = 0.0
	maxSpeed = 120.0
)

// RejectionReport tallies per-reason record rejections from one Process
// call. Rejections are per-record and never fail the stage.
type RejectionReport struct {
	MissingRequired int `json:"missing_required" yaml:"missing_required"`
	ZeroCoordinates int `json:"zero_coordinates" yaml:"zero_coordinates"`
	OutOfBounds     int `json:"out_of_bounds" yaml:"out_of_bounds"`
	SpeedOutOfRange int `json:"speed_out_of_range" yaml:"speed_out_of_range"`
	Duplicates      int `json:"duplicates" yaml:"duplicates"`
}

// Total returns the number of rejected records.
func (r RejectionReport) Total() int {
	return r.MissingRequired + r.ZeroCoordinates + r.OutOfBounds + r.SpeedOutOfRange + r.Duplicates
}

// Counts returns the report as a map for run summaries.
func (r RejectionReport) Counts() map[string]int {
	return map[string]int{
		"missing_required":   r.MissingRequired,
		"zero_coordinates":   r.ZeroCoordinates,
		"out_of_bounds":      r.OutOfBounds,
		"speed_out_of_range": r.SpeedOutOfRange,
		"duplicates":         r.Duplicates,
	}
}

// Processor validates and enriches raw position records.
type Processor struct {
	bounds Bounds
}

// NewProcessor creates a Processor filtering against the given bounding box.
func NewProcessor(bounds Bounds) *Processor {
	return &Processor{bounds: bounds}
}

type dedupeKey struct {
	vehicle int64
	ts      int64
}

// Process runs the validation pipeline over raw records, in order:
// required-field nullity, zero-coordinate sentinel, bounding box, speed
// range, first-wins dedupe on (vehicle, timestamp), then enrichment and
// quality scoring. Returns the surviving records and the rejection tally.
func (p *Processor) Process(raw []model.RawRecord) ([]model.PositionRecord, RejectionReport) {
	var report RejectionReport
	seen := make(map[dedupeKey]struct{}, len(raw))
	out := make([]model.PositionRecord, 0, len(raw))

	for _, r := range raw {
		// Latitude, longitude, timestamp and vehicle id are drop-triggering
		// when absent; other nulls only lower the completeness score.
		if r.Latitude == nil || r.Longitude == nil || r.Timestamp == nil || r.VehicleID == nil {
			report.MissingRequired++
			continue
		}

		lat, lon := *r.Latitude, *r.Longitude

		// (0,0) is the receiver's signal-loss sentinel, not a position.
		if lat == 0 && lon == 0 {
			report.ZeroCoordinates++
			continue
		}

		if !p.bounds.Contains(lat, lon) {
			report.OutOfBounds++
			continue
		}

		if r.Speed != nil && (*r.Speed < minSpeed || *r.Speed > maxSpeed) {
			report.SpeedOutOfRange++
			continue
		}

		key := dedupeKey{vehicle: *r.VehicleID, ts: r.Timestamp.Unix()}
		if _, dup := seen[key]; dup {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		out = append(out, enrich(r))
	}

	if report.Total() > 0 {
		zap.L().Info("silver validation rejections",
			zap.Int("input", len(raw)),
			zap.Int("kept", len(out)),
			zap.Int("missing_required", report.MissingRequired),
			zap.Int("zero_coordinates", report.ZeroCoordinates),
			zap.Int("out_of_bounds", report.OutOfBounds),
			zap.Int("speed_out_of_range", report.SpeedOutOfRange),
			zap.Int("duplicates", report.Duplicates),
		)
	}

	return out, report
}

// enrich derives the calendar features and quality score for a record that
// passed all hard rules.
func enrich(r model.RawRecord) model.PositionRecord {
	local := r.Timestamp.In(wire.FeedZone)

	return model.PositionRecord{
		VehicleID:    *r.VehicleID,
		LineID:       r.LineID,
		Latitude:     *r.Latitude,
		Longitude:    *r.Longitude,
		Speed:        r.Speed,
		Heading:      r.Heading,
		Timestamp:    local,
		Date:         local.Format("2006-01-02"),
		Hour:         local.Hour(),
		DayOfWeek:    local.Weekday(),
		Period:       model.ClassifyPeriod(local.Hour()),
		QualityScore: qualityScore(r),
	}
}

// optionalFieldCount is the number of fields that contribute to the
// completeness component: event code, speed, line, heading, status,
// odometer. The required fields are guaranteed present post-filter.
const optionalFieldCount = 6.0

// qualityScore combines completeness and coordinate validity 60/40. The
// coordinate component is 1.0 for every surviving record since invalid
// coordinates were already dropped; the weighting is kept as-is so the
// score stays comparable if soft-invalid records are ever retained.
func qualityScore(r model.RawRecord) float64 {
	present := 0.0
	if r.EventCode != nil {
		present++
	}
	if r.Speed != nil {
		present++
	}
	if r.LineID != nil {
		present++
	}
	if r.Heading != nil {
		present++
	}
	if r.Status != nil {
		present++
	}
	if r.Odometer != nil {
		present++
	}

	completeness := present / optionalFieldCount
	const coordinateValidity = 1.0

	score := 0.6*completeness + 0.4*coordinateValidity
	return math.Round(score*1000) / 1000
}
