package geospatial

import (
	"sort"

	"github.com/sells-group/countrysync/internal/model"
)

// Result is a country with its distance from the query point.
type Result struct {
	Country    model.Country `json:"country"`
	DistanceKm float64       `json:"distance_km"`
}

// Nearby returns the records within radiusKm of origin (inclusive), nearest
// first, truncated to limit. Records missing either coordinate are skipped.
// Equal distances are ordered by alpha2Code so results are deterministic.
func Nearby(records []model.Country, origin Point, radiusKm float64, limit int) []Result {
	if limit <= 0 || radiusKm < 0 {
		return []Result{}
	}

	results := make([]Result, 0, len(records))
	for _, c := range records {
		if !c.HasCoordinates() {
			continue
		}
		d := DistanceKm(origin, Point{Lat: *c.Latitude, Lon: *c.Longitude})
		if d <= radiusKm {
			results = append(results, Result{Country: c, DistanceKm: d})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].Country.Alpha2Code < results[j].Country.Alpha2Code
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
