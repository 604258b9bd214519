// Package gold computes the analytical aggregate tables from the Silver
// snapshot: speed profiles per line, fleet activity per hour, geographic
// coverage per line and congestion grid cells. Aggregations are pure
// functions over the Silver records; each run overwrites the Gold tables.
package gold

import (
	"fmt"
	"math"
	"sort"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

type lineDateKey struct {
	line int64
	date string
}

// SpeedByLine aggregates speed observations per (line, date). Records
// without a line or a speed carry no signal for this table and are skipped.
// Output order is deterministic: date, then line.
func SpeedByLine(records []model.PositionRecord) []model.SpeedByLine {
	groups := make(map[lineDateKey][]float64)
	for _, r := range records {
		if r.LineID == nil || r.Speed == nil {
			continue
		}
		k := lineDateKey{line: *r.LineID, date: r.Date}
		groups[k] = append(groups[k], *r.Speed)
	}

	out := make([]model.SpeedByLine, 0, len(groups))
	for k, speeds := range groups {
		sort.Float64s(speeds)
		agg := model.SpeedByLine{
			LineID:      k.line,
			Date:        k.date,
			MeanSpeed:   round2(mean(speeds)),
			MedianSpeed: round2(median(speeds)),
			MaxSpeed:    speeds[len(speeds)-1],
			MinSpeed:    speeds[0],
			RecordCount: len(speeds),
		}
		if len(speeds) > 1 {
			sd := round2(stddev(speeds))
			agg.StdDev = &sd
		}
		out = append(out, agg)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].LineID < out[j].LineID
	})
	return out
}

func mean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// median expects vs sorted.
func median(vs []float64) float64 {
	n := len(vs)
	if n%2 == 1 {
		return vs[n/2]
	}
	return (vs[n/2-1] + vs[n/2]) / 2
}

// stddev is the population standard deviation.
func stddev(vs []float64) float64 {
	m := mean(vs)
	sum := 0.0
	for _, v := range vs {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vs)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func fmtCell(lat, lon float64) string {
	return fmt.Sprintf("%.2f_%.2f", lat, lon)
}
