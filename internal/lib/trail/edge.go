package trail

import (
	"math"

	"github.com/dpup/trailgraph/internal/lib/geo"
)

// RouteDistanceCorrection scales straight-line edge length up to walked
// distance.
const RouteDistanceCorrection = 1.02147882

// Edge is a directed segment between two consecutive nodes. Vertical is the
// next node's elevation minus the previous node's.
type Edge struct {
	Prev       NodeID  `json:"prev"`
	Next       NodeID  `json:"next"`
	Horizontal float64 `json:"h" validate:"gte=0"`
	Vertical   float64 `json:"v"`
}

// NewEdge measures the horizontal distance between from and to with the
// precise formula.
func NewEdge(prev, next NodeID, from, to Node) Edge {
	return NewEdgeWithDistance(prev, next, from, to, geo.PreciseDistance(from.Point(), to.Point()))
}

// NewEdgeWithDistance builds an edge with a pre-measured horizontal distance.
func NewEdgeWithDistance(prev, next NodeID, from, to Node, horizontal float64) Edge {
	return Edge{
		Prev:       prev,
		Next:       next,
		Horizontal: horizontal,
		Vertical:   to.Elevation - from.Elevation,
	}
}

// Slope is rise over run, zero for a zero-length edge.
func (e Edge) Slope() float64 {
	if e.Horizontal == 0 {
		return 0
	}
	return e.Vertical / e.Horizontal
}

// Distance is the corrected walking distance along the edge in meters.
func (e Edge) Distance() float64 {
	return math.Sqrt(e.Horizontal*e.Horizontal+e.Vertical*e.Vertical) * RouteDistanceCorrection
}

// SetHorizontal updates the horizontal run; slope and distance follow.
func (e *Edge) SetHorizontal(h float64) {
	e.Horizontal = h
}

// SetVertical updates the rise; slope and distance follow.
func (e *Edge) SetVertical(v float64) {
	e.Vertical = v
}

// IsSynthetic reports whether the edge joins the observer rather than two
// graph nodes.
func (e Edge) IsSynthetic() bool {
	return e.Prev == ObserverNode || e.Next == ObserverNode
}

// isExtreme flags slopes worth a debug log. Nothing depends on it.
func (e Edge) isExtreme() bool {
	return e.Horizontal > 30 && math.Abs(e.Slope()) > 0.7
}

// ElevationAlong interpolates the elevation distance meters into the edge
// from prev to next. Travelling toward the end the origin is prev, otherwise
// it is next. The distance is clamped to the edge and a zero-length edge
// yields the origin's elevation.
func ElevationAlong(prev, next Node, e Edge, distance float64, dir Direction) float64 {
	origin := prev.Elevation
	if dir == TowardStart {
		origin = next.Elevation
	}
	if e.Horizontal <= 0 || math.IsNaN(distance) {
		return origin
	}

	distance = math.Max(0, math.Min(distance, e.Horizontal))
	if dir == TowardStart {
		return origin - e.Slope()*distance
	}
	return origin + e.Slope()*distance
}
