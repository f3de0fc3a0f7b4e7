package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dpup/trailgraph/internal/config"
	"github.com/dpup/trailgraph/internal/lib/routing"
	"github.com/dpup/trailgraph/internal/lib/trail"
	"github.com/dpup/trailgraph/internal/metrics"
	"github.com/dpup/trailgraph/internal/store"
)

type testServer struct {
	*httptest.Server
	registry *routing.Registry
	tracker  *Tracker
	metrics  *metrics.Registry
}

// ridge climbs east from (38, -120) in five 88 m edges with a spring at the
// third node.
func ridge() *trail.Graph {
	g := trail.New("Ridge Trail")
	g.StartDescription = "Trailhead"
	g.EndDescription = "Summit"
	for i := 0; i < 6; i++ {
		n := trail.NewNode(38.0, -120.0+float64(i)*0.001, 1000+float64(i)*20)
		if i == 3 {
			n.Name, n.Description, n.Symbol = "WA0003", "Spring", "Water"
		}
		g.Append(n)
	}
	return g
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Display.System = "metric"

	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := metrics.NewRegistry()
	reg := routing.NewRegistry(s, time.Hour, routing.WithMetrics(m))
	reg.Add(ridge())
	require.NoError(t, reg.Save(context.Background()))

	tracker := NewTracker(cfg.Observer.RecentWindow)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tracker.Run(ctx)
		close(done)
	}()

	trails, err := NewTrailsService(reg, tracker, cfg, zap.NewNop())
	require.NoError(t, err)
	srv := httptest.NewServer(NewHandler(trails, tracker, m, zap.NewNop()).Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testServer{Server: srv, registry: reg, tracker: tracker, metrics: m}
}

func (ts *testServer) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) postJSON(t *testing.T, path, body string, out any) int {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestListRoutes(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Routes []RouteInfo `json:"routes"`
		Count  int         `json:"count"`
	}
	require.Equal(t, http.StatusOK, ts.getJSON(t, "/api/v1/routes", &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Ridge Trail", body.Routes[0].Name)
}

func TestGetRoute(t *testing.T) {
	ts := newTestServer(t)

	var route Route
	require.Equal(t, http.StatusOK, ts.getJSON(t, "/api/v1/routes/"+url.PathEscape("Ridge Trail"), &route))
	assert.Equal(t, "Trailhead", route.StartDescription)
	assert.Equal(t, 6, route.Summary.Nodes)
	assert.InDelta(t, 100, route.Summary.Gain, 1e-9)
	assert.NotEmpty(t, route.Polyline)
	assert.Equal(t, "100m", route.Display.Gain)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, ts.getJSON(t, "/api/v1/routes/nowhere", &errBody))
	assert.Contains(t, errBody["error"], "not found")
}

func TestGetEntry(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/routes/" + url.PathEscape("Ridge Trail") + "/entry"

	var onNode EntryResponse
	require.Equal(t, http.StatusOK, ts.getJSON(t, path+"?lat=38.0&lon=-119.999&direction=to-start", &onNode))
	assert.True(t, onNode.OnTrail)
	require.NotNil(t, onNode.Entry)
	assert.True(t, onNode.Entry.OnNode)
	assert.Equal(t, trail.TowardStart, onNode.Entry.Direction)

	var off EntryResponse
	require.Equal(t, http.StatusOK, ts.getJSON(t, path+"?lat=38.001&lon=-119.999", &off))
	assert.False(t, off.OnTrail)
	assert.Nil(t, off.Entry)
	assert.InDelta(t, 111, off.Distance, 1)
	require.NotNil(t, off.Nearest)
	assert.Equal(t, -119.999, off.Nearest.Longitude)

	// A wider snap reaches the same observer.
	var wide EntryResponse
	require.Equal(t, http.StatusOK, ts.getJSON(t, path+"?lat=38.0006&lon=-119.999&snap=75", &wide))
	assert.True(t, wide.OnTrail)

	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, path+"?lat=north&lon=-119.999", nil))
	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, path+"?lat=38&lon=-119.999&snap=20", nil))
	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, path+"?lat=38&lon=-119.999&direction=up", nil))
	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, path+"?lat=95&lon=-119.999", nil))
}

func TestGetProfile(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/routes/" + url.PathEscape("Ridge Trail") + "/profile?lat=38.0&lon=-120.0&zoom=1000"

	var resp ProfileResponse
	require.Equal(t, http.StatusOK, ts.getJSON(t, path, &resp))
	require.NotNil(t, resp.Profile)
	require.NotNil(t, resp.Display)
	// The zero-length entry edge plus five trail edges.
	assert.Len(t, resp.Profile.Segments, 6)
	require.Len(t, resp.Profile.Markers, 1)
	assert.Equal(t, "Spring", resp.Profile.Markers[0].Node.Description)
	assert.InDelta(t, 100, resp.Profile.Totals.Gain, 1e-6)
	assert.Equal(t, "100m", resp.Display.Gain)

	var slow ProfileResponse
	require.Equal(t, http.StatusOK, ts.getJSON(t, path+"&bias=0.5", &slow))
	assert.Greater(t, slow.Profile.Totals.Time, resp.Profile.Totals.Time)

	var off ProfileResponse
	require.Equal(t, http.StatusOK, ts.getJSON(t, "/api/v1/routes/"+url.PathEscape("Ridge Trail")+"/profile?lat=39&lon=-120", &off))
	assert.False(t, off.OnTrail)
	assert.Nil(t, off.Profile)
}

func TestObserverFlow(t *testing.T) {
	ts := newTestServer(t)

	var obs map[string]any
	require.Equal(t, http.StatusOK, ts.getJSON(t, "/api/v1/observer", &obs))
	assert.Equal(t, "none", obs["freshness"])

	// Before any fix the default location is far from the ridge.
	var resp ProfileResponse
	require.Equal(t, http.StatusOK, ts.getJSON(t, "/api/v1/observer/profile?route="+url.QueryEscape("Ridge Trail"), &resp))
	assert.Equal(t, FreshnessSimulated, resp.Freshness)
	assert.False(t, resp.OnTrail)

	status := ts.postJSON(t, "/api/v1/observer", `{"lat":38.0,"lng":-119.998,"ele":0,"direction":"end"}`, nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Eventually(t, func() bool {
		_, ok := ts.tracker.Current()
		return ok
	}, time.Second, time.Millisecond)

	resp = ProfileResponse{}
	require.Equal(t, http.StatusOK, ts.getJSON(t, "/api/v1/observer/profile?route="+url.QueryEscape("Ridge Trail"), &resp))
	assert.Equal(t, FreshnessRecent, resp.Freshness)
	assert.True(t, resp.OnTrail)
	require.NotNil(t, resp.Profile)
	assert.InDelta(t, 60, resp.Profile.Totals.Gain, 1e-6)

	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, "/api/v1/observer/profile", nil))
	assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/api/v1/observer", `{"lat":"x"}`, nil))
}

func TestPostWaypoint(t *testing.T) {
	ts := newTestServer(t)

	var resp WaypointResponse
	require.Equal(t, http.StatusOK, ts.postJSON(t, "/api/v1/waypoints",
		`{"lat":38.00004,"lng":-119.9995,"name":"CS0001","desc":"Flat camp","sym":"Campsite"}`, &resp))
	assert.True(t, resp.Inserted)
	assert.Empty(t, ts.registry.Dirty(), "inserted waypoints are saved")

	require.NoError(t, ts.registry.View(context.Background(), "Ridge Trail", func(g *trail.Graph) error {
		assert.Equal(t, 7, g.Len())
		n := g.Node(g.NodeAt(1))
		assert.Equal(t, "CS0001", n.Name)
		// The elevation was taken from the trail.
		assert.InDelta(t, 1010, n.Elevation, 1)
		return nil
	}))

	resp = WaypointResponse{}
	require.Equal(t, http.StatusOK, ts.postJSON(t, "/api/v1/waypoints",
		`{"lat":39,"lng":-121,"name":"FAR","desc":"Elsewhere"}`, &resp))
	assert.False(t, resp.Inserted)

	assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/api/v1/waypoints", `not json`, nil))
	assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/api/v1/waypoints",
		`{"lat":200,"lng":-121,"name":"BAD","desc":"Off the globe"}`, nil))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.getJSON(t, "/api/v1/routes", nil))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		ts.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/routes", "200")))
}
