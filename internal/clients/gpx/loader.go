// Package gpx builds trail graphs from GPX documents.
package gpx

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	gpxgo "github.com/tkrajina/gpxgo/gpx"
	"go.uber.org/zap"

	"github.com/dpup/trailgraph/internal/lib/trail"
)

// Registry receives the graphs and waypoints found in a document.
type Registry interface {
	Add(g *trail.Graph)
	InsertWaypoint(ctx context.Context, n trail.Node) bool
}

// Result summarizes one import.
type Result struct {
	Graphs    []string `json:"graphs"`
	Waypoints int      `json:"waypoints"`
	Inserted  int      `json:"inserted"`
	Skipped   int      `json:"skipped"`
}

// Loader turns GPX tracks and routes into graphs and places waypoints on
// them.
type Loader struct {
	registry Registry
	skip     []string
	opts     []trail.Option
	logger   *zap.Logger
}

// NewLoader creates a loader. Waypoints whose description is empty or in
// skip are ignored. Graph options apply to every graph built.
func NewLoader(registry Registry, skip []string, logger *zap.Logger, opts ...trail.Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		registry: registry,
		skip:     skip,
		opts:     append([]trail.Option{trail.WithLogger(logger)}, opts...),
		logger:   logger,
	}
}

// LoadFile imports the GPX file at path.
func (l *Loader) LoadFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return l.Load(ctx, data)
}

// Load imports a GPX document. Every track and route becomes a graph and is
// added before any waypoint is inserted.
func (l *Loader) Load(ctx context.Context, data []byte) (Result, error) {
	doc, err := gpxgo.ParseBytes(data)
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse GPX: %w", err)
	}

	var res Result
	for i, trk := range doc.Tracks {
		var points []gpxgo.GPXPoint
		for _, seg := range trk.Segments {
			points = append(points, seg.Points...)
		}
		if g := l.build(trk.Name, trk.Description, points, fmt.Sprintf("track %d", i+1)); g != nil {
			l.registry.Add(g)
			res.Graphs = append(res.Graphs, g.Name)
		}
	}
	for i, rte := range doc.Routes {
		if g := l.build(rte.Name, rte.Description, rte.Points, fmt.Sprintf("route %d", i+1)); g != nil {
			l.registry.Add(g)
			res.Graphs = append(res.Graphs, g.Name)
		}
	}

	for _, wpt := range doc.Waypoints {
		res.Waypoints++
		if wpt.Description == "" || slices.Contains(l.skip, wpt.Description) {
			res.Skipped++
			continue
		}
		n := trail.NewWaypoint(wpt.Latitude, wpt.Longitude, math.NaN(), wpt.Name, wpt.Description, wpt.Symbol)
		if wpt.Elevation.NotNull() {
			n.Elevation = wpt.Elevation.Value()
		}
		if l.registry.InsertWaypoint(ctx, n) {
			res.Inserted++
		} else {
			l.logger.Debug("Waypoint not on any graph",
				zap.String("name", wpt.Name),
				zap.Float64("lat", wpt.Latitude),
				zap.Float64("lon", wpt.Longitude))
		}
	}

	l.logger.Info("Imported GPX",
		zap.Strings("graphs", res.Graphs),
		zap.Int("waypoints", res.Waypoints),
		zap.Int("inserted", res.Inserted))
	return res, nil
}

// build appends points in order. A missing elevation repeats the previous
// point's. Empty tracks yield nil.
func (l *Loader) build(name, desc string, points []gpxgo.GPXPoint, fallback string) *trail.Graph {
	if len(points) == 0 {
		l.logger.Warn("Skipping empty GPX track", zap.String("name", name))
		return nil
	}
	if name == "" {
		name = fallback
	}

	g := trail.New(name, l.opts...)
	g.StartDescription, g.EndDescription = splitDescription(desc)

	ele := 0.0
	for _, p := range points {
		if p.Elevation.NotNull() {
			ele = p.Elevation.Value()
		}
		n := trail.NewNode(p.Latitude, p.Longitude, ele)
		n.Name = p.Name
		n.Description = p.Description
		n.Symbol = p.Symbol
		g.Append(n)
	}
	g.Bookend()
	return g
}

// splitDescription reads "From to To" descriptions. Anything else describes
// the start only.
func splitDescription(desc string) (start, end string) {
	desc = strings.TrimSpace(desc)
	if from, to, ok := strings.Cut(desc, " to "); ok {
		return strings.TrimSpace(from), strings.TrimSpace(to)
	}
	return desc, ""
}

// ReadTrack returns the points of every track and route in the GPX file at
// path, in document order. It is used to replay a recorded hike.
func ReadTrack(path string) ([]trail.Node, error) {
	doc, err := gpxgo.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var nodes []trail.Node
	add := func(points []gpxgo.GPXPoint) {
		for _, p := range points {
			ele := 0.0
			if p.Elevation.NotNull() {
				ele = p.Elevation.Value()
			}
			nodes = append(nodes, trail.NewNode(p.Latitude, p.Longitude, ele))
		}
	}
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			add(seg.Points)
		}
	}
	for _, rte := range doc.Routes {
		add(rte.Points)
	}
	return nodes, nil
}
