package trail

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/trailgraph/internal/lib/geo"
)

// metersNorth converts a northward offset to degrees of latitude.
func metersNorth(m float64) float64 {
	return m / geo.MetersPerDegree
}

// eastboundTrail builds five nodes along latitude 38, 0.001 degrees of
// longitude apart (about 88 m), climbing 10 m per edge.
func eastboundTrail(t *testing.T) *Graph {
	t.Helper()
	g := New("eastbound")
	for i := 0; i < 5; i++ {
		g.Append(NewNode(38.0, -120.0+float64(i)*0.001, 100+float64(i)*10))
	}
	require.Equal(t, 5, g.Len())
	return g
}

func TestEdge_SlopeAndDistance(t *testing.T) {
	e := Edge{Horizontal: 100, Vertical: 0}
	assert.InDelta(t, 102.147882, e.Distance(), 1e-6)
	assert.Equal(t, 0.0, e.Slope())

	e.SetVertical(20)
	assert.InDelta(t, 0.2, e.Slope(), 1e-12)
	assert.InDelta(t, math.Sqrt(100*100+20*20)*RouteDistanceCorrection, e.Distance(), 1e-9)

	e.SetHorizontal(0)
	assert.Equal(t, 0.0, e.Slope(), "zero-length edge has no slope")
}

func TestAppend(t *testing.T) {
	g := eastboundTrail(t)

	assert.Equal(t, 4, g.EdgeCount())

	first := g.Node(g.NodeAt(0))
	last := g.Node(g.NodeAt(4))
	assert.Equal(t, NoEdge, first.PrevEdge)
	assert.NotEqual(t, NoEdge, first.NextEdge)
	assert.Equal(t, NoEdge, last.NextEdge)

	e := g.Edge(first.NextEdge)
	assert.Equal(t, g.NodeAt(0), e.Prev)
	assert.Equal(t, g.NodeAt(1), e.Next)
	assert.InDelta(t, 87.8, e.Horizontal, 0.5)
	assert.InDelta(t, 10, e.Vertical, 1e-9)

	ext := g.Extent()
	assert.Equal(t, 38.0, ext.MinLatitude)
	assert.Equal(t, 38.0, ext.MaxLatitude)
	assert.InDelta(t, -120.0, ext.MinLongitude, 1e-12)
	assert.InDelta(t, -119.996, ext.MaxLongitude, 1e-12)

	assert.True(t, g.InExtent(geo.Point{Latitude: 38.0, Longitude: -119.998}))
	assert.False(t, g.InExtent(geo.Point{Latitude: 38.001, Longitude: -119.998}))
}

func TestAppendWithDistance(t *testing.T) {
	g := New("measured")
	g.Append(NewNode(38.0, -120.0, 100))
	g.AppendWithDistance(NewNode(38.0, -119.999, 100), 120)

	assert.Equal(t, 120.0, g.Edge(0).Horizontal)
}

func TestAppend_SingleNode(t *testing.T) {
	g := New("single")
	g.Append(NewNode(38.0, -120.0, 100))

	assert.Equal(t, 1, g.Len())
	assert.Equal(t, 0, g.EdgeCount())
	n := g.Node(g.NodeAt(0))
	assert.Equal(t, NoEdge, n.PrevEdge)
	assert.Equal(t, NoEdge, n.NextEdge)
}

func TestNearestNodeIndex(t *testing.T) {
	assert.Equal(t, -1, New("empty").NearestNodeIndex(geo.Point{}))

	g := eastboundTrail(t)
	assert.Equal(t, 2, g.NearestNodeIndex(geo.Point{Latitude: 38.0001, Longitude: -119.9981}))
	assert.Equal(t, 0, g.NearestNodeIndex(geo.Point{Latitude: 37.0, Longitude: -121.0}))

	// Ties go to the lower index
	loop := New("loop")
	loop.Append(NewNode(38.0, -120.0, 100))
	loop.Append(NewNode(38.0, -119.999, 100))
	loop.Append(NewNode(38.0, -120.0, 100))
	assert.Equal(t, 0, loop.NearestNodeIndex(geo.Point{Latitude: 38.0, Longitude: -120.0}))
}

func TestBookendAndSummary(t *testing.T) {
	g := eastboundTrail(t)
	g.Bookend()

	assert.Equal(t, "to end", g.Node(g.NodeAt(0)).Name)
	assert.Equal(t, "to start", g.Node(g.NodeAt(4)).Name)

	s := g.Summary()
	assert.Equal(t, 5, s.Nodes)
	assert.Equal(t, 4, s.Edges)
	assert.InDelta(t, 40, s.Gain, 1e-9)
	assert.Equal(t, 0.0, s.Loss)
	assert.InDelta(t, 4*math.Sqrt(87.83*87.83+100)*RouteDistanceCorrection, s.Distance, 1)
}

func TestNodeIsNear(t *testing.T) {
	a := NewNode(38.0, -120.0, 0)
	b := NewNode(38.0+metersNorth(2), -120.0, 0)
	c := NewNode(38.0+metersNorth(5), -120.0, 0)

	assert.True(t, a.IsNear(b, 3.33))
	assert.False(t, a.IsNear(c, 3.33))
	assert.NotEqual(t, a, b, "struct equality stays exact")

	// The threshold itself is not near
	d := geo.RoughDistance(a.Point(), c.Point())
	assert.False(t, a.IsNear(c, d))
	assert.True(t, a.IsNear(c, d+1e-6))
}

func TestNodeChangeLocation(t *testing.T) {
	n := NewWaypoint(38.0, -120.0, 100, "Spring", "reliable", "Water")
	n.PrevEdge = 3
	n.ChangeLocation(39.0, -121.0, 200)

	assert.Equal(t, NewNode(39.0, -121.0, 200), n)
	assert.False(t, n.HasMetadata())
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{
		"":         TowardEnd,
		"end":      TowardEnd,
		"to-end":   TowardEnd,
		"START":    TowardStart,
		"to-start": TowardStart,
	} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}

func TestDirectionJSON(t *testing.T) {
	b, err := json.Marshal(struct{ Dir Direction }{TowardStart})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Dir":"start"}`, string(b))

	var v struct{ Dir Direction }
	require.NoError(t, json.Unmarshal([]byte(`{"Dir":"to-start"}`), &v))
	assert.Equal(t, TowardStart, v.Dir)
	assert.Error(t, json.Unmarshal([]byte(`{"Dir":"up"}`), &v))
}

func TestExtentContainsWithin(t *testing.T) {
	var empty Extent
	assert.False(t, empty.ContainsWithin(geo.Point{}, 1000))

	g := eastboundTrail(t)
	ext := g.Extent()
	beside := geo.Point{Latitude: 38.0 + metersNorth(10), Longitude: -119.998}

	assert.False(t, ext.Contains(beside), "a single-latitude trail has a flat box")
	assert.True(t, ext.ContainsWithin(beside, 15))
	assert.False(t, ext.ContainsWithin(beside, 5))

	b, err := json.Marshal(ext)
	require.NoError(t, err)
	var decoded Extent
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, ext, decoded)
}
