package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/dpup/trailgraph/internal/config"
	"github.com/dpup/trailgraph/internal/lib/geo"
	"github.com/dpup/trailgraph/internal/lib/pace"
	"github.com/dpup/trailgraph/internal/lib/profile"
	"github.com/dpup/trailgraph/internal/lib/routing"
	"github.com/dpup/trailgraph/internal/lib/trail"
	"github.com/dpup/trailgraph/internal/lib/units"
)

// ErrInvalidRequest marks requests with bad parameters.
var ErrInvalidRequest = errors.New("invalid request")

// RouteInfo lists a graph by name.
type RouteInfo struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Route describes a single graph.
type Route struct {
	Name             string        `json:"name"`
	StartDescription string        `json:"start_description,omitempty"`
	EndDescription   string        `json:"end_description,omitempty"`
	LocationCode     string        `json:"location_code,omitempty"`
	Summary          trail.Summary `json:"summary"`
	Extent           trail.Extent  `json:"extent"`
	Polyline         string        `json:"polyline"`
	Display          Display       `json:"display"`
}

// Display holds formatted strings for the client's measurement system.
type Display struct {
	Distance string `json:"distance"`
	Gain     string `json:"gain"`
	Loss     string `json:"loss"`
	Time     string `json:"time,omitempty"`
}

// EntryRequest locates an observer on a route.
type EntryRequest struct {
	Route     string
	Observer  trail.Node
	Direction trail.Direction
	// Snap is the snap-to-trail distance; zero uses the configured default.
	Snap float64
}

// EntryResponse is where the observer joins the route. Entry is nil when
// the observer is too far; Nearest then names the closest node so a client
// can offer to simulate a position there.
type EntryResponse struct {
	Route    string       `json:"route"`
	OnTrail  bool         `json:"on_trail"`
	Distance float64      `json:"distance_meters"`
	Entry    *trail.Entry `json:"entry,omitempty"`
	Nearest  *trail.Node  `json:"nearest,omitempty"`
}

// ProfileRequest builds the profile ahead of an observer.
type ProfileRequest struct {
	EntryRequest
	// Zoom is the window in meters; zero uses the configured default.
	Zoom float64
	// Bias scales pace; zero uses the configured default.
	Bias float64
}

// ProfileResponse carries the profile and its formatted totals.
type ProfileResponse struct {
	EntryResponse
	Freshness Freshness        `json:"freshness,omitempty"`
	Profile   *profile.Profile `json:"profile,omitempty"`
	Display   *Display         `json:"display,omitempty"`
}

// WaypointRequest adds a waypoint to every route it lies on.
type WaypointRequest struct {
	Latitude    float64  `json:"lat"`
	Longitude   float64  `json:"lng"`
	Elevation   *float64 `json:"ele,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"desc"`
	Symbol      string   `json:"sym"`
}

// WaypointResponse reports whether any route took the waypoint.
type WaypointResponse struct {
	Inserted bool `json:"inserted"`
}

// TrailsService answers route, entry and profile queries against the
// registry.
type TrailsService struct {
	registry *routing.Registry
	tracker  *Tracker
	config   *config.Config
	format   *units.Formatter
	logger   *zap.Logger
}

// NewTrailsService creates a TrailsService.
func NewTrailsService(registry *routing.Registry, tracker *Tracker, cfg *config.Config, logger *zap.Logger) (*TrailsService, error) {
	system, err := units.ParseSystem(cfg.Display.System)
	if err != nil {
		return nil, err
	}
	tag, err := language.Parse(cfg.Display.Language)
	if err != nil {
		return nil, fmt.Errorf("invalid display language: %w", err)
	}
	return &TrailsService{
		registry: registry,
		tracker:  tracker,
		config:   cfg,
		format:   units.NewFormatter(system, tag),
		logger:   logger,
	}, nil
}

// ListRoutes returns every known route.
func (s *TrailsService) ListRoutes(ctx context.Context) ([]RouteInfo, error) {
	names, err := s.registry.Names(ctx)
	if err != nil {
		return nil, err
	}
	active := s.registry.Active()

	routes := make([]RouteInfo, 0, len(names))
	for _, name := range names {
		routes = append(routes, RouteInfo{Name: name, Active: slices.Contains(active, name)})
	}
	return routes, nil
}

// GetRoute describes a route.
func (s *TrailsService) GetRoute(ctx context.Context, name string) (*Route, error) {
	var route *Route
	err := s.registry.View(ctx, name, func(g *trail.Graph) error {
		sum := g.Summary()
		route = &Route{
			Name:             g.Name,
			StartDescription: g.StartDescription,
			EndDescription:   g.EndDescription,
			LocationCode:     g.LocationCode,
			Summary:          sum,
			Extent:           g.Extent(),
			Polyline:         geo.EncodePolyline(g.Points()),
			Display: Display{
				Distance: s.format.Distance(sum.Distance),
				Gain:     s.format.Elevation(sum.Gain),
				Loss:     s.format.Elevation(sum.Loss),
			},
		}
		return nil
	})
	return route, err
}

func (s *TrailsService) snap(requested float64) (float64, error) {
	if requested == 0 {
		return float64(s.config.Matching.SnapToTrailMeters), nil
	}
	if m := int(requested); float64(m) != requested || !slices.Contains(config.SnapToTrailOptions, m) {
		return 0, fmt.Errorf("%w: snap must be one of %v", ErrInvalidRequest, config.SnapToTrailOptions)
	}
	return requested, nil
}

// Entry finds where an observer joins a route.
func (s *TrailsService) Entry(ctx context.Context, req EntryRequest) (*EntryResponse, error) {
	if _, err := geo.NewPoint(req.Observer.Latitude, req.Observer.Longitude); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	snap, err := s.snap(req.Snap)
	if err != nil {
		return nil, err
	}

	entry, dist, err := s.registry.Entry(ctx, req.Route, req.Observer, snap, req.Direction)
	if err != nil {
		return nil, err
	}

	resp := &EntryResponse{Route: req.Route, OnTrail: entry != nil, Distance: dist, Entry: entry}
	if entry == nil {
		_ = s.registry.View(ctx, req.Route, func(g *trail.Graph) error {
			if n, _, ok := g.NearestNode(req.Observer.Point()); ok {
				resp.Nearest = &n
			}
			return nil
		})
	}
	return resp, nil
}

// Profile builds the profile ahead of an observer.
func (s *TrailsService) Profile(ctx context.Context, req ProfileRequest) (*ProfileResponse, error) {
	zoom := req.Zoom
	if zoom == 0 {
		zoom = s.config.Display.ZoomMeters
	}
	if zoom < 0 {
		return nil, fmt.Errorf("%w: zoom must be positive", ErrInvalidRequest)
	}
	bias := req.Bias
	if bias == 0 {
		bias = s.config.Pace.Bias
	}
	model := pace.NewModel(pace.ClampBias(bias))

	entry, err := s.Entry(ctx, req.EntryRequest)
	if err != nil {
		return nil, err
	}
	resp := &ProfileResponse{EntryResponse: *entry}
	if entry.Entry == nil {
		return resp, nil
	}

	err = s.registry.View(ctx, req.Route, func(g *trail.Graph) error {
		p := profile.Build(g, entry.Entry, profile.Options{Window: zoom, Model: model})
		resp.Profile = &p
		resp.Display = &Display{
			Distance: s.format.Distance(p.Totals.Distance),
			Gain:     s.format.Elevation(p.Totals.Gain),
			Loss:     s.format.Elevation(p.Totals.Loss),
			Time:     s.format.Duration(p.Totals.Time),
		}
		return nil
	})
	return resp, err
}

// ObserverProfile builds the profile for the tracker's latest position, or
// the configured default location when no fix has arrived.
func (s *TrailsService) ObserverProfile(ctx context.Context, route string, zoom, bias float64) (*ProfileResponse, error) {
	pos, ok := s.tracker.Current()
	freshness := s.tracker.Freshness()
	if !ok {
		obs := s.config.Observer
		pos = Position{Observer: trail.NewNode(obs.DefaultLatitude, obs.DefaultLongitude, obs.DefaultElevation), Simulated: true}
		freshness = FreshnessSimulated
	}

	resp, err := s.Profile(ctx, ProfileRequest{
		EntryRequest: EntryRequest{Route: route, Observer: pos.Observer, Direction: pos.Direction},
		Zoom:         zoom,
		Bias:         bias,
	})
	if err != nil {
		return nil, err
	}
	resp.Freshness = freshness
	return resp, nil
}

// InsertWaypoint places a waypoint and saves the routes it landed on.
func (s *TrailsService) InsertWaypoint(ctx context.Context, req WaypointRequest) (*WaypointResponse, error) {
	p, err := geo.NewPoint(req.Latitude, req.Longitude)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	// Without an elevation the waypoint takes the trail's.
	ele := math.NaN()
	if req.Elevation != nil {
		ele = *req.Elevation
	}
	n := trail.NewWaypoint(p.Latitude, p.Longitude, ele, req.Name, req.Description, req.Symbol)

	inserted := s.registry.InsertWaypoint(ctx, n)
	if inserted {
		if err := s.registry.Save(ctx); err != nil {
			return nil, err
		}
	}
	s.logger.Info("Waypoint submitted", zap.String("name", req.Name), zap.Bool("inserted", inserted))
	return &WaypointResponse{Inserted: inserted}, nil
}
