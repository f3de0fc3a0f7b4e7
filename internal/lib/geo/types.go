package geo

import "math"

// Earth model constants in meters.
const (
	// EarthRadius is the mean radius used by the spherical law of cosines.
	EarthRadius = 6371008.8

	// WGS-84 ellipsoid
	SemiMajorAxis = 6378137.0
	SemiMinorAxis = 6356752.314245
	Flattening    = 1 / 298.257223563

	// MetersPerDegree converts equirectangular degrees to meters.
	MetersPerDegree = 111195.0
)

// NotPerpendicular is returned by PointToSegmentDistance when the point does
// not project onto the interior of the segment.
const NotPerpendicular = math.MaxFloat64

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Valid reports whether the point is inside [-90, 90] x [-180, 180].
func (p Point) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}
