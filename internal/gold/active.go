package gold

import (
	"sort"
	"time"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

type dateHourKey struct {
	date string
	hour int
}

type activeGroup struct {
	vehicles  map[int64]struct{}
	records   int
	dayOfWeek time.Weekday
}

// ActiveVehicles counts distinct vehicles and total observations per
// (date, hour). Output order is deterministic: date, then hour.
func ActiveVehicles(records []model.PositionRecord) []model.ActiveVehiclesByPeriod {
	groups := make(map[dateHourKey]*activeGroup)
	for _, r := range records {
		k := dateHourKey{date: r.Date, hour: r.Hour}
		g, ok := groups[k]
		if !ok {
			g = &activeGroup{vehicles: make(map[int64]struct{}), dayOfWeek: r.DayOfWeek}
			groups[k] = g
		}
		g.vehicles[r.VehicleID] = struct{}{}
		g.records++
	}

	out := make([]model.ActiveVehiclesByPeriod, 0, len(groups))
	for k, g := range groups {
		out = append(out, model.ActiveVehiclesByPeriod{
			Date:           k.date,
			Hour:           k.hour,
			Period:         model.ClassifyPeriod(k.hour),
			DayOfWeek:      g.dayOfWeek,
			UniqueVehicles: len(g.vehicles),
			RecordCount:    g.records,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}
