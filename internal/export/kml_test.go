package export

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/trailgraph/internal/lib/trail"
)

func TestKML(t *testing.T) {
	g := trail.New("Sonora Pass")
	g.StartDescription = "Sonora Pass"
	g.EndDescription = "Ebbetts Pass"
	g.Append(trail.NewNode(38.3299, -119.6358, 2930))
	g.Append(trail.NewWaypoint(38.3310, -119.6370, 2950, "WA1015", "Creek", "Water"))
	g.Append(trail.NewNode(38.3325, -119.6381, 2975))
	g.Append(trail.NewWaypoint(38.3340, -119.6392, 3001, "", "", "Summit"))
	g.Append(trail.NewNode(38.3352, -119.6401, 2990))
	g.Bookend()

	var buf bytes.Buffer
	require.NoError(t, KML(&buf, g))
	out := buf.String()

	assert.Contains(t, out, "<LineString>")
	assert.Contains(t, out, "<altitudeMode>absolute</altitudeMode>")
	assert.Contains(t, out, "<name>WA1015</name>")
	assert.Contains(t, out, "<description>Creek</description>")
	assert.Contains(t, out, "<description>Sonora Pass to Ebbetts Pass</description>")
	assert.Contains(t, out, "<name>Summit</name>", "symbol-only nodes are named by their symbol")
	// Trail line plus the bookends and the two waypoints; plain nodes are skipped.
	assert.Equal(t, 5, strings.Count(out, "<Placemark>"))

	// The document is well formed.
	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		_, err := dec.Token()
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
	}
}

func TestKML_Empty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, KML(&buf, trail.New("empty")))
}
