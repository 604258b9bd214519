package gold

import (
	"math"
	"sort"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

// gridEdge is the congestion grid cell size in degrees, roughly 1.1 km of
// latitude at Belo Horizonte.
const gridEdge = 0.01

type cellKey struct {
	lat, lon float64
	date     string
}

type cellGroup struct {
	sum      float64
	count    int
	hourSum  [24]float64
	hourSeen [24]int
}

// snap rounds a coordinate to its grid cell center.
func snap(v float64) float64 {
	return math.Round(v/gridEdge) * gridEdge
}

// CriticalPoints aggregates speed observations onto the fixed grid per
// date, classifying each cell's congestion severity and identifying its
// peak hour, the hour with the lowest mean speed (lowest hour wins ties).
// Records without a speed are skipped. Output order is deterministic:
// date, then cell id.
func CriticalPoints(records []model.PositionRecord) []model.CriticalSpeedPoint {
	groups := make(map[cellKey]*cellGroup)
	for _, r := range records {
		if r.Speed == nil {
			continue
		}
		k := cellKey{lat: snap(r.Latitude), lon: snap(r.Longitude), date: r.Date}
		g, ok := groups[k]
		if !ok {
			g = &cellGroup{}
			groups[k] = g
		}
		g.sum += *r.Speed
		g.count++
		g.hourSum[r.Hour] += *r.Speed
		g.hourSeen[r.Hour]++
	}

	out := make([]model.CriticalSpeedPoint, 0, len(groups))
	for k, g := range groups {
		m := round2(g.sum / float64(g.count))
		out = append(out, model.CriticalSpeedPoint{
			CellID:    fmtCell(k.lat, k.lon),
			Date:      k.date,
			GridLat:   k.lat,
			GridLon:   k.lon,
			MeanSpeed: m,
			PassCount: g.count,
			Severity:  model.ClassifySeverity(m),
			PeakHour:  peakHour(g),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].CellID < out[j].CellID
	})
	return out
}

func peakHour(g *cellGroup) int {
	best, bestMean := -1, math.Inf(1)
	for h := 0; h < 24; h++ {
		if g.hourSeen[h] == 0 {
			continue
		}
		m := g.hourSum[h] / float64(g.hourSeen[h])
		if m < bestMean {
			best, bestMean = h, m
		}
	}
	return best
}
