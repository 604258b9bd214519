package silver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhtransit/mobility-pipeline/internal/model"
	"github.com/bhtransit/mobility-pipeline/internal/wire"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func rawAt(vehicle int64, ts time.Time, lat, lon float64) model.RawRecord {
	return model.RawRecord{
		VehicleID: i64(vehicle),
		Timestamp: &ts,
		Latitude:  f64(lat),
		Longitude: f64(lon),
		Source:    model.SourceRealtime,
	}
}

func TestProcessValidRecordSurvives(t *testing.T) {
	// 2024-05-10 18:17:20 local time in Belo Horizonte.
	ts := time.Date(2024, 5, 10, 18, 17, 20, 0, wire.FeedZone)

	raw := rawAt(31238, ts, -19.912, -43.940)
	raw.EventCode = i64(105)
	raw.Speed = f64(25)
	raw.LineID = i64(6016)
	raw.Heading = f64(180)
	raw.Status = i64(1)
	raw.Odometer = f64(123456.7)

	p := NewProcessor(MetropolitanBounds)
	got, report := p.Process([]model.RawRecord{raw})

	require.Len(t, got, 1)
	assert.Zero(t, report.Total())

	rec := got[0]
	assert.Equal(t, int64(31238), rec.VehicleID)
	assert.Equal(t, "2024-05-10", rec.Date)
	assert.Equal(t, 18, rec.Hour)
	assert.Equal(t, time.Friday, rec.DayOfWeek)
	assert.Equal(t, model.PeriodEvening, rec.Period)
	assert.InDelta(t, 1.0, rec.QualityScore, 1e-9)
}

func TestProcessEnrichesFromLocalTime(t *testing.T) {
	// 02:30 local is 05:30 UTC. Enrichment must use the feed zone, or the
	// record slips from dawn into morning.
	ts := time.Date(2024, 5, 10, 2, 30, 0, 0, wire.FeedZone).UTC()

	p := NewProcessor(MetropolitanBounds)
	got, _ := p.Process([]model.RawRecord{rawAt(1, ts, -19.9, -43.9)})

	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Hour)
	assert.Equal(t, model.PeriodDawn, got[0].Period)
	assert.Equal(t, "2024-05-10", got[0].Date)
}

func TestProcessDropsMissingRequired(t *testing.T) {
	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, wire.FeedZone)

	noLat := rawAt(1, ts, 0, -43.9)
	noLat.Latitude = nil
	noVehicle := rawAt(0, ts, -19.9, -43.9)
	noVehicle.VehicleID = nil
	noTS := rawAt(3, ts, -19.9, -43.9)
	noTS.Timestamp = nil

	p := NewProcessor(MetropolitanBounds)
	got, report := p.Process([]model.RawRecord{noLat, noVehicle, noTS})

	assert.Empty(t, got)
	assert.Equal(t, 3, report.MissingRequired)
	assert.Equal(t, 3, report.Total())
}

func TestProcessDropsZeroCoordinateSentinel(t *testing.T) {
	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, wire.FeedZone)

	// (0,0) is also outside the bounding box; the sentinel rule must claim
	// it first so the report attributes the drop correctly.
	p := NewProcessor(MetropolitanBounds)
	got, report := p.Process([]model.RawRecord{rawAt(1, ts, 0, 0)})

	assert.Empty(t, got)
	assert.Equal(t, 1, report.ZeroCoordinates)
	assert.Zero(t, report.OutOfBounds)
}

func TestProcessDropsOutOfBounds(t *testing.T) {
	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, wire.FeedZone)

	inside := rawAt(1, ts, -19.9, -43.9)
	saoPaulo := rawAt(2, ts, -23.55, -46.63)
	northOfBox := rawAt(3, ts, -19.6, -43.9)

	p := NewProcessor(MetropolitanBounds)
	got, report := p.Process([]model.RawRecord{inside, saoPaulo, northOfBox})

	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].VehicleID)
	assert.Equal(t, 2, report.OutOfBounds)
}

func TestProcessBoundsInclusive(t *testing.T) {
	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, wire.FeedZone)

	corner := rawAt(1, ts, MetropolitanBounds.MinLat, MetropolitanBounds.MaxLon)

	p := NewProcessor(MetropolitanBounds)
	got, report := p.Process([]model.RawRecord{corner})

	assert.Len(t, got, 1)
	assert.Zero(t, report.Total())
}

func TestProcessDropsSpeedOutOfRange(t *testing.T) {
	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, wire.FeedZone)

	tooFast := rawAt(1, ts, -19.9, -43.9)
	tooFast.Speed = f64(150)
	negative := rawAt(2, ts, -19.9, -43.9)
	negative.Speed = f64(-1)
	atLimit := rawAt(3, ts, -19.9, -43.9)
	atLimit.Speed = f64(120)
	noSpeed := rawAt(4, ts, -19.9, -43.9)

	p := NewProcessor(MetropolitanBounds)
	got, report := p.Process([]model.RawRecord{tooFast, negative, atLimit, noSpeed})

	require.Len(t, got, 2)
	assert.Equal(t, 2, report.SpeedOutOfRange)

	// A missing speed is a completeness problem, not a range violation.
	assert.Nil(t, got[1].Speed)
}

func TestProcessDedupeFirstWins(t *testing.T) {
	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, wire.FeedZone)

	first := rawAt(31238, ts, -19.90, -43.90)
	first.Speed = f64(10)
	second := rawAt(31238, ts, -19.95, -43.95)
	second.Speed = f64(40)
	otherVehicle := rawAt(99, ts, -19.9, -43.9)
	otherSecond := rawAt(31238, ts.Add(time.Second), -19.9, -43.9)

	p := NewProcessor(MetropolitanBounds)
	got, report := p.Process([]model.RawRecord{first, second, otherVehicle, otherSecond})

	require.Len(t, got, 3)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, -19.90, got[0].Latitude)
	assert.Equal(t, 10.0, *got[0].Speed)
}

func TestProcessIsIdempotent(t *testing.T) {
	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, wire.FeedZone)

	input := []model.RawRecord{
		rawAt(1, ts, -19.9, -43.9),
		rawAt(1, ts, -19.91, -43.91),
		rawAt(2, ts, 0, 0),
		rawAt(3, ts, -23.55, -46.63),
	}

	p := NewProcessor(MetropolitanBounds)
	once, reportOnce := p.Process(input)
	twice, reportTwice := p.Process(input)

	assert.Equal(t, once, twice)
	assert.Equal(t, reportOnce, reportTwice)
}

func TestQualityScoreBounds(t *testing.T) {
	ts := time.Date(2024, 5, 10, 12, 0, 0, 0, wire.FeedZone)

	bare := rawAt(1, ts, -19.9, -43.9)

	full := rawAt(2, ts, -19.9, -43.9)
	full.EventCode = i64(105)
	full.Speed = f64(20)
	full.LineID = i64(6016)
	full.Heading = f64(90)
	full.Status = i64(1)
	full.Odometer = f64(1)

	half := rawAt(3, ts, -19.9, -43.9)
	half.Speed = f64(20)
	half.LineID = i64(6016)
	half.Heading = f64(90)

	p := NewProcessor(MetropolitanBounds)
	got, _ := p.Process([]model.RawRecord{bare, full, half})
	require.Len(t, got, 3)

	// Required fields only: completeness 0, coordinate component 0.4.
	assert.InDelta(t, 0.4, got[0].QualityScore, 1e-9)
	assert.InDelta(t, 1.0, got[1].QualityScore, 1e-9)
	assert.InDelta(t, 0.7, got[2].QualityScore, 1e-9)

	for _, rec := range got {
		assert.GreaterOrEqual(t, rec.QualityScore, 0.0)
		assert.LessOrEqual(t, rec.QualityScore, 1.0)
	}
}

func TestRejectionReportCounts(t *testing.T) {
	r := RejectionReport{MissingRequired: 1, ZeroCoordinates: 2, OutOfBounds: 3, SpeedOutOfRange: 4, Duplicates: 5}

	assert.Equal(t, 15, r.Total())
	assert.Equal(t, map[string]int{
		"missing_required":   1,
		"zero_coordinates":   2,
		"out_of_bounds":      3,
		"speed_out_of_range": 4,
		"duplicates":         5,
	}, r.Counts())
}
