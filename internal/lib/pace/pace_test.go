package pace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtSlope(t *testing.T) {
	// Fastest on a gentle descent
	assert.InDelta(t, 6.0, AtSlope(-0.05), 1e-12)
	assert.InDelta(t, 5.036742, AtSlope(0), 1e-6)
	assert.Less(t, AtSlope(0.2), AtSlope(0.1))
	assert.Less(t, AtSlope(-0.3), AtSlope(-0.1))
}

func TestAtElevation(t *testing.T) {
	assert.InDelta(t, 5*math.Exp(-0.3), AtElevation(5, 3000, 0.1), 1e-12)
	assert.Equal(t, 5.0, AtElevation(5, 3000, 0), "level ground is unaffected")
	assert.Equal(t, 5.0, AtElevation(5, 3000, -0.1), "downhill is unaffected")
}

func TestEstimate(t *testing.T) {
	assert.InDelta(t, AtSlope(0.1)*math.Exp(-0.2), Estimate(0.1, 2000), 1e-12)
	assert.Equal(t, AtSlope(-0.1), Estimate(-0.1, 2000))
}

func TestDuration(t *testing.T) {
	// 10 km at 5 km/h
	assert.InDelta(t, 2.0, Duration(10000, 5, 1), 1e-12)
	// A faster hiker halves it
	assert.InDelta(t, 1.0, Duration(10000, 5, 2), 1e-12)
	assert.True(t, math.IsInf(Duration(10000, 0, 1), 1))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Easy, Classify(4.5))
	assert.Equal(t, Moderate, Classify(4.2))
	assert.Equal(t, Moderate, Classify(3.2))
	assert.Equal(t, Hard, Classify(2.0))
	assert.Equal(t, "hard", Hard.String())
}

func TestModel(t *testing.T) {
	assert.Equal(t, DefaultBias, NewModel(0).Bias)
	assert.Equal(t, MaxBias, NewModel(5).Bias)
	assert.Equal(t, MinBias, NewModel(0.1).Bias)

	m := NewModel(1.5)
	assert.InDelta(t, Estimate(0.1, 1000)*1.5, m.Pace(0.1, 1000), 1e-12)
	assert.InDelta(t, Duration(5000, Estimate(0.1, 1000), 1.5), m.Duration(5000, 0.1, 1000), 1e-12)
}
