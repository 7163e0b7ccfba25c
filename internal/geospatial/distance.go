// Package geospatial answers "which countries lie within r km of a point"
// over the records that carry coordinates.
package geospatial

import (
	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
)

// EarthRadiusKm is the mean Earth radius used for all great-circle distances.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Validate checks the coordinate ranges.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return eris.Errorf("longitude %v out of range [-180, 180]", p.Lon)
	}
	return nil
}

func (p Point) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

// DistanceKm returns the haversine great-circle distance between a and b.
func DistanceKm(a, b Point) float64 {
	// s2.LatLng.Distance evaluates the haversine formula.
	return a.latLng().Distance(b.latLng()).Radians() * EarthRadiusKm
}
