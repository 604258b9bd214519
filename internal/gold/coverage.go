package gold

import (
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

type coverageGroup struct {
	bounds         *geom.Bounds
	sumLat, sumLon float64
	points         map[[2]float64]struct{}
	count          int
}

// Coverage computes the spatial footprint of each (line, date): bounding
// box, centroid, planar bounding-box area in squared degrees and the number
// of distinct observed points. Records without a line are skipped. Output
// order is deterministic: date, then line.
func Coverage(records []model.PositionRecord) []model.GeographicCoverage {
	groups := make(map[lineDateKey]*coverageGroup)
	for _, r := range records {
		if r.LineID == nil {
			continue
		}
		k := lineDateKey{line: *r.LineID, date: r.Date}
		g, ok := groups[k]
		if !ok {
			g = &coverageGroup{
				bounds: geom.NewBounds(geom.XY),
				points: make(map[[2]float64]struct{}),
			}
			groups[k] = g
		}
		g.bounds.Extend(geom.NewPointFlat(geom.XY, []float64{r.Longitude, r.Latitude}))
		g.sumLat += r.Latitude
		g.sumLon += r.Longitude
		g.points[[2]float64{r.Latitude, r.Longitude}] = struct{}{}
		g.count++
	}

	out := make([]model.GeographicCoverage, 0, len(groups))
	for k, g := range groups {
		minLat, maxLat := g.bounds.Min(1), g.bounds.Max(1)
		minLon, maxLon := g.bounds.Min(0), g.bounds.Max(0)
		out = append(out, model.GeographicCoverage{
			LineID:         k.line,
			Date:           k.date,
			MinLat:         minLat,
			MaxLat:         maxLat,
			MinLon:         minLon,
			MaxLon:         maxLon,
			CentroidLat:    g.sumLat / float64(g.count),
			CentroidLon:    g.sumLon / float64(g.count),
			Area:           (maxLat - minLat) * (maxLon - minLon),
			DistinctPoints: len(g.points),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].LineID < out[j].LineID
	})
	return out
}
