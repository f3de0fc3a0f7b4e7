package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestFormatter_Metric(t *testing.T) {
	f := NewFormatter(Metric, language.English)

	assert.Equal(t, "1.5km", f.Distance(1500))
	assert.Equal(t, "2.0km", f.Distance(2000))
	assert.Equal(t, "250m", f.Distance(250))
	assert.Equal(t, "2,500m", f.Elevation(2500))
	assert.Equal(t, "4.5km/h", f.Speed(4.5))
}

func TestFormatter_Imperial(t *testing.T) {
	f := NewFormatter(Imperial, language.English)

	assert.Equal(t, "2.0mi", f.Distance(3218.69))
	assert.Equal(t, "0.31mi", f.Distance(500))
	assert.Equal(t, "109yds", f.Distance(100))
	assert.Equal(t, "8,202ft", f.Elevation(2500))
	assert.Equal(t, "3.1mi/h", f.Speed(5))
}

func TestFormatter_Duration(t *testing.T) {
	f := NewFormatter(Imperial, language.English)

	assert.Equal(t, "1:45", f.Duration(1.75))
	assert.Equal(t, "0:05", f.Duration(5.0/60+1e-9))
	assert.Equal(t, "--:--", f.Duration(math.Inf(1)))
}

func TestParseSystem(t *testing.T) {
	s, err := ParseSystem(" Imperial ")
	require.NoError(t, err)
	assert.Equal(t, Imperial, s)

	_, err = ParseSystem("nautical")
	assert.Error(t, err)
}

func TestMetersToMiles(t *testing.T) {
	assert.InDelta(t, 1.0, MetersToMiles(1609.34), 1e-4)
}
