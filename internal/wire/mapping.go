package wire

import (
	"strconv"
	"time"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

// Field codes of the real-time position feed.
const (
	codeEvent     = "EV"
	codeTimestamp = "HR" // YYYYMMDDHHmmss, local time
	codeLatitude  = "LT"
	codeLongitude = "LG"
	codeVehicle   = "NV"
	codeSpeed     = "VL"
	codeLine      = "NL"
	codeHeading   = "DG"
	codeStatus    = "SV"
	codeOdometer  = "DT"
)

const timestampLayout = "20060102150405"

// FeedZone is the feed's local time zone. Belo Horizonte is UTC-3
// year-round; calendar derivations downstream must use this zone, not UTC.
var FeedZone = time.FixedZone("-03", -3*60*60)

// MapRecord translates a parsed field map into a typed RawRecord. A field
// that is absent or fails coercion is left nil; the record itself is never
// discarded here. The validator applies its completeness rules downstream.
func MapRecord(fields map[string]string, source model.Source, ingestedAt time.Time) model.RawRecord {
	rec := model.RawRecord{
		IngestedAt: ingestedAt,
		Source:     source,
	}
	rec.EventCode = parseInt(fields[codeEvent])
	rec.Timestamp = parseTimestamp(fields[codeTimestamp])
	rec.Latitude = parseFloat(fields[codeLatitude])
	rec.Longitude = parseFloat(fields[codeLongitude])
	rec.VehicleID = parseInt(fields[codeVehicle])
	rec.Speed = parseFloat(fields[codeSpeed])
	rec.LineID = parseInt(fields[codeLine])
	rec.Heading = parseFloat(fields[codeHeading])
	rec.Status = parseInt(fields[codeStatus])
	rec.Odometer = parseFloat(fields[codeOdometer])
	return rec
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(timestampLayout, s, FeedZone)
	if err != nil {
		return nil
	}
	return &t
}
