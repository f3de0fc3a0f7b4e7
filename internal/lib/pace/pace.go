// Package pace estimates hiking speed from slope and altitude.
//
// Paces are in km/h. Slope is rise over run.
package pace

import (
	"math"
)

const (
	DefaultBias = 1.0
	MinBias     = 0.5
	MaxBias     = 2.0

	// Difficulty bands in km/h
	EasyAbove = 4.2
	HardBelow = 3.2
)

// AtSlope is Tobler's hiking function.
func AtSlope(slope float64) float64 {
	return 6.0 * math.Exp(-3.5*math.Abs(slope+0.05))
}

// AtElevation reduces an uphill pace for thinner air. Level and downhill
// paces are returned unchanged.
func AtElevation(pace, elevation, slope float64) float64 {
	if slope > 0 {
		return pace * math.Exp(-0.0001*elevation)
	}
	return pace
}

// Estimate combines the slope and altitude terms.
func Estimate(slope, elevation float64) float64 {
	return AtElevation(AtSlope(slope), elevation, slope)
}

// Duration returns the hours needed to cover distanceMeters at pace scaled by
// the hiker's bias. A non-positive effective pace never arrives.
func Duration(distanceMeters, pace, bias float64) float64 {
	speed := pace * bias
	if speed <= 0 {
		return math.Inf(1)
	}
	return (distanceMeters / 1000) / speed
}

// ClampBias limits a bias to the supported range. Zero selects the default.
func ClampBias(bias float64) float64 {
	if bias == 0 || math.IsNaN(bias) {
		return DefaultBias
	}
	return math.Max(MinBias, math.Min(MaxBias, bias))
}

// Difficulty grades a stretch of trail by the pace it allows.
type Difficulty int

const (
	Moderate Difficulty = iota
	Easy
	Hard
)

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Hard:
		return "hard"
	}
	return "moderate"
}

// MarshalText renders the difficulty by name.
func (d Difficulty) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Classify maps a pace to a difficulty band.
func Classify(pace float64) Difficulty {
	switch {
	case pace > EasyAbove:
		return Easy
	case pace < HardBelow:
		return Hard
	}
	return Moderate
}

// Model applies a hiker's bias to the estimated pace.
type Model struct {
	Bias float64
}

// NewModel returns a model with the bias clamped to the supported range.
func NewModel(bias float64) Model {
	return Model{Bias: ClampBias(bias)}
}

// Pace is the biased pace for an edge.
func (m Model) Pace(slope, elevation float64) float64 {
	return Estimate(slope, elevation) * m.Bias
}

// Duration is the biased time in hours to walk distanceMeters.
func (m Model) Duration(distanceMeters, slope, elevation float64) float64 {
	return Duration(distanceMeters, Estimate(slope, elevation), m.Bias)
}
