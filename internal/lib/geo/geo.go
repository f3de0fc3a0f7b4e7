package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// ErrNoConvergence is reported when the Vincenty iteration does not settle,
// which happens for nearly antipodal points.
var ErrNoConvergence = errors.New("vincenty formula failed to converge")

// ErrInvalidCoordinate is returned for points outside the valid lat/lon range.
var ErrInvalidCoordinate = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

const (
	vincentyTolerance     = 1e-9
	vincentyMaxIterations = 200
)

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	p := Point{Latitude: latitude, Longitude: longitude}
	if !p.Valid() {
		return Point{}, ErrInvalidCoordinate
	}
	return p, nil
}

// RoughDistance returns the great-circle distance between two points in meters
// using the spherical law of cosines. Fast and accurate enough for ranking
// candidates during nearest-node scans.
func RoughDistance(p1, p2 Point) float64 {
	if p1 == p2 {
		return 0
	}
	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	dlon := toRadians(p2.Longitude - p1.Longitude)

	// Rounding can push the cosine just past 1 for very close points
	c := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(dlon)
	c = math.Max(-1, math.Min(1, c))

	return math.Acos(c) * EarthRadius
}

// PreciseDistance returns the ellipsoidal distance in meters. If the Vincenty
// iteration does not converge the rough distance is returned instead.
func PreciseDistance(p1, p2 Point) float64 {
	d, err := Vincenty(p1, p2)
	if err != nil {
		return RoughDistance(p1, p2)
	}
	return d
}

// Vincenty computes the inverse geodesic distance on the WGS-84 ellipsoid.
func Vincenty(p1, p2 Point) (float64, error) {
	if p1 == p2 {
		return 0, nil
	}

	a, b, f := SemiMajorAxis, SemiMinorAxis, Flattening

	L := toRadians(p2.Longitude - p1.Longitude)
	U1 := math.Atan((1 - f) * math.Tan(toRadians(p1.Latitude)))
	U2 := math.Atan((1 - f) * math.Tan(toRadians(p2.Latitude)))
	sinU1, cosU1 := math.Sincos(U1)
	sinU2, cosU2 := math.Sincos(U2)

	lambda := L
	for i := 0; i < vincentyMaxIterations; i++ {
		sinLambda, cosLambda := math.Sincos(lambda)
		sinSigma := math.Sqrt(math.Pow(cosU2*sinLambda, 2) +
			math.Pow(cosU1*sinU2-sinU1*cosU2*cosLambda, 2))
		if sinSigma == 0 {
			return 0, nil
		}
		cosSigma := sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma := math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha := 1 - sinAlpha*sinAlpha

		// Both points on the equator
		cos2SigmaM := 0.0
		if cosSqAlpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		}

		C := f / 16 * cosSqAlpha * (4 + f*(4-3*cosSqAlpha))
		prev := lambda
		lambda = L + (1-C)*f*sinAlpha*
			(sigma+C*sinSigma*(cos2SigmaM+C*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

		if math.Abs(lambda-prev) < vincentyTolerance {
			uSq := cosSqAlpha * (a*a - b*b) / (b * b)
			A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
			B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
			deltaSigma := B * sinSigma * (cos2SigmaM + B/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
				B/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
			return b * A * (sigma - deltaSigma), nil
		}
	}

	return 0, ErrNoConvergence
}

// PointToSegmentDistance returns the perpendicular distance in meters from p
// to the segment a-b, or NotPerpendicular when p lies beyond either end.
//
// The calculation works in degrees with longitude scaled by the cosine of the
// segment's mean latitude. That is only accurate for short segments, which is
// all a trail edge ever is.
func PointToSegmentDistance(p, a, b Point) float64 {
	lonCorr := math.Cos(toRadians((a.Latitude + b.Latitude) / 2))

	ab := math.Hypot(a.Latitude-b.Latitude, (a.Longitude-b.Longitude)*lonCorr)
	an := math.Hypot(a.Latitude-p.Latitude, (a.Longitude-p.Longitude)*lonCorr)
	nb := math.Hypot(p.Latitude-b.Latitude, (p.Longitude-b.Longitude)*lonCorr)

	if ab == 0 {
		if an == 0 {
			return 0
		}
		return NotPerpendicular
	}
	if an > ab || nb > ab {
		return NotPerpendicular
	}

	cross := math.Abs((b.Longitude-a.Longitude)*lonCorr*(a.Latitude-p.Latitude) -
		(a.Longitude-p.Longitude)*lonCorr*(b.Latitude-a.Latitude))

	return cross / ab * MetersPerDegree
}

// EncodePolyline encodes points using the Google polyline algorithm.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
