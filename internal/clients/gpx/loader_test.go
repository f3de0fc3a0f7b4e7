package gpx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/trailgraph/internal/lib/trail"
)

type fakeRegistry struct {
	graphs []*trail.Graph
}

func (f *fakeRegistry) Add(g *trail.Graph) { f.graphs = append(f.graphs, g) }

func (f *fakeRegistry) InsertWaypoint(_ context.Context, n trail.Node) bool {
	ok := false
	for _, g := range f.graphs {
		if g.InsertWaypoint(n).Ok() {
			ok = true
		}
	}
	return ok
}

const sonoraPass = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <wpt lat="38.00004" lon="-119.9995">
    <ele>112</ele>
    <name>WA1015</name>
    <desc>Creek crossing</desc>
    <sym>Water</sym>
  </wpt>
  <wpt lat="38.0" lon="-119.998">
    <name>MRK</name>
    <desc>Triangle, Red</desc>
  </wpt>
  <wpt lat="38.0" lon="-119.997">
    <name>NODESC</name>
  </wpt>
  <wpt lat="39.0" lon="-121.0">
    <name>FAR</name>
    <desc>Somewhere else</desc>
  </wpt>
  <trk>
    <name>Sonora Pass</name>
    <desc>Sonora Pass to Ebbetts Pass</desc>
    <trkseg>
      <trkpt lat="38.0" lon="-120.000"><ele>100</ele></trkpt>
      <trkpt lat="38.0" lon="-119.999"><ele>110</ele></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="38.0" lon="-119.998"><ele>120</ele></trkpt>
      <trkpt lat="38.0" lon="-119.997"></trkpt>
    </trkseg>
  </trk>
  <rte>
    <desc>Spur</desc>
    <rtept lat="38.1" lon="-120.0"><ele>500</ele></rtept>
    <rtept lat="38.101" lon="-120.0"><ele>510</ele></rtept>
  </rte>
</gpx>`

func TestLoad(t *testing.T) {
	reg := &fakeRegistry{}
	l := NewLoader(reg, []string{"Triangle, Red"}, nil)

	res, err := l.Load(context.Background(), []byte(sonoraPass))
	require.NoError(t, err)

	assert.Equal(t, []string{"Sonora Pass", "route 1"}, res.Graphs)
	assert.Equal(t, 4, res.Waypoints)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Inserted)

	require.Len(t, reg.graphs, 2)
	g := reg.graphs[0]
	assert.Equal(t, "Sonora Pass", g.StartDescription)
	assert.Equal(t, "Ebbetts Pass", g.EndDescription)

	// Segments are joined and the creek waypoint split the first edge.
	require.Equal(t, 5, g.Len())
	assert.Equal(t, "to end", g.Node(g.NodeAt(0)).Name)
	assert.Equal(t, "to start", g.Node(g.NodeAt(4)).Name)
	assert.Equal(t, "WA1015", g.Node(g.NodeAt(1)).Name)
	assert.Equal(t, "Creek crossing", g.Node(g.NodeAt(1)).Description)

	// A point without elevation repeats the previous one.
	assert.Equal(t, 120.0, g.Node(g.NodeAt(4)).Elevation)

	spur := reg.graphs[1]
	assert.Equal(t, "Spur", spur.StartDescription)
	assert.Empty(t, spur.EndDescription)
	assert.Equal(t, 2, spur.Len())
}

func TestLoad_Invalid(t *testing.T) {
	l := NewLoader(&fakeRegistry{}, nil, nil)
	_, err := l.Load(context.Background(), []byte(`<gpx version="1.1"><trk>`))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonora.gpx")
	require.NoError(t, os.WriteFile(path, []byte(sonoraPass), 0o644))

	reg := &fakeRegistry{}
	res, err := NewLoader(reg, nil, nil).LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, res.Graphs, 2)

	_, err = NewLoader(reg, nil, nil).LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.gpx"))
	assert.Error(t, err)
}

func TestReadTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonora.gpx")
	require.NoError(t, os.WriteFile(path, []byte(sonoraPass), 0o644))

	nodes, err := ReadTrack(path)
	require.NoError(t, err)
	require.Len(t, nodes, 6)
	assert.Equal(t, 100.0, nodes[0].Elevation)
	// Missing elevations read as zero, the unknown marker for observers.
	assert.Equal(t, 0.0, nodes[3].Elevation)
	assert.Equal(t, 38.101, nodes[5].Latitude)
}

func TestSplitDescription(t *testing.T) {
	tests := []struct {
		desc, start, end string
	}{
		{"Sonora Pass to Ebbetts Pass", "Sonora Pass", "Ebbetts Pass"},
		{"  Northbound  ", "Northbound", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		start, end := splitDescription(tt.desc)
		assert.Equal(t, tt.start, start, tt.desc)
		assert.Equal(t, tt.end, end, tt.desc)
	}
}
