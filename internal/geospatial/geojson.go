package geospatial

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// FeatureCollection renders nearby results as GeoJSON Point features keyed
// by alpha2Code.
func FeatureCollection(results []Result) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(results))}
	for _, r := range results {
		c := r.Country
		if !c.HasCoordinates() {
			continue
		}
		props := map[string]any{
			"id":          c.ID,
			"alpha2_code": c.Alpha2Code,
			"name":        c.DisplayName(),
			"source":      string(c.Source),
			"distance_km": r.DistanceKm,
		}
		if c.Capital != nil {
			props["capital"] = *c.Capital
		}
		if c.Population != nil {
			props["population"] = *c.Population
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         c.Alpha2Code,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{*c.Longitude, *c.Latitude}),
			Properties: props,
		})
	}
	return fc
}
