// Package halfmile builds trail graphs from the PCTA elevation export and
// the Halfmile waypoint list.
//
// PCTA rows are comma separated:
//
//	seq,lat,lon,elevation,segmentLength,_,sectionMark
//
// segmentLength is the measured distance to the next row; a section mark of
// 1 ends the current graph on that row and starts the next one from it.
// Halfmile rows are tab separated and keyed by the PCTA sequence number:
//
//	seq	lat	lon	elevation	name	description	pctaSeq	distanceToPcta
package halfmile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/dpup/trailgraph/internal/lib/trail"
	"github.com/dpup/trailgraph/internal/lib/units"
)

const (
	StartDescription = "Northbound"
	EndDescription   = "Southbound"

	// DefaultFarWaypoint is 100 ft.
	DefaultFarWaypoint = 30.48
)

// ErrMalformedRow is returned for rows with missing or unparsable fields.
var ErrMalformedRow = errors.New("malformed row")

// Registry receives the graphs built from a track.
type Registry interface {
	Add(g *trail.Graph)
}

// Result summarizes one import.
type Result struct {
	Graphs    []string `json:"graphs"`
	Rows      int      `json:"rows"`
	Waypoints int      `json:"waypoints"`
}

// Loader builds one graph per trail section.
type Loader struct {
	registry Registry
	sections []string
	far      float64
	format   *units.Formatter
	opts     []trail.Option
	logger   *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithFarWaypoint sets the offset beyond which a waypoint's description is
// prefixed with its distance from the trail.
func WithFarWaypoint(meters float64) Option {
	return func(l *Loader) { l.far = meters }
}

// WithFormatter sets how waypoint offsets are written.
func WithFormatter(f *units.Formatter) Option {
	return func(l *Loader) { l.format = f }
}

// WithGraphOptions applies opts to every graph built.
func WithGraphOptions(opts ...trail.Option) Option {
	return func(l *Loader) { l.opts = append(l.opts, opts...) }
}

// NewLoader creates a loader naming graphs from sections in order. Sections
// beyond the list are numbered.
func NewLoader(registry Registry, sections []string, logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		registry: registry,
		sections: sections,
		far:      DefaultFarWaypoint,
		format:   units.NewFormatter(units.Imperial, language.AmericanEnglish),
		opts:     []trail.Option{trail.WithLogger(logger)},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type waypoint struct {
	name        string
	description string
	distance    float64
}

type row struct {
	seq       int
	lat, lon  float64
	elevation float64
	segment   float64
	mark      bool
}

// Load reads a PCTA track and, when waypoints is non-nil, the Halfmile
// waypoint list, and adds a graph per section.
func (l *Loader) Load(track, waypoints io.Reader) (Result, error) {
	var res Result

	named := map[int]waypoint{}
	if waypoints != nil {
		var err error
		if named, err = readWaypoints(waypoints); err != nil {
			return res, err
		}
	}

	r := csv.NewReader(track)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var g *trail.Graph
	section := 0
	prevSegment := math.NaN()
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("failed to read track: %w", err)
		}
		pr, err := parseRow(rec)
		if err != nil {
			return res, fmt.Errorf("track line %d: %w", line, err)
		}
		res.Rows++

		if g == nil {
			g = l.newGraph(section)
		}

		n := trail.NewNode(pr.lat, pr.lon, pr.elevation)
		if wp, ok := named[pr.seq]; ok {
			n.Name = wp.name
			n.Description = l.describe(wp)
			res.Waypoints++
		}
		g.AppendWithDistance(n, prevSegment)

		if pr.mark {
			l.finish(g, &res)
			section++
			g = l.newGraph(section)
			g.Append(n)
		}
		prevSegment = pr.segment
	}

	if g != nil && g.Len() > 1 {
		l.finish(g, &res)
	}

	l.logger.Info("Imported Halfmile track",
		zap.Int("rows", res.Rows),
		zap.Strings("graphs", res.Graphs),
		zap.Int("waypoints", res.Waypoints))
	return res, nil
}

func (l *Loader) newGraph(section int) *trail.Graph {
	name := fmt.Sprintf("section %d", section+1)
	if section < len(l.sections) {
		name = l.sections[section]
	}
	g := trail.New(name, l.opts...)
	g.StartDescription = StartDescription
	g.EndDescription = EndDescription
	return g
}

func (l *Loader) finish(g *trail.Graph, res *Result) {
	l.registry.Add(g)
	res.Graphs = append(res.Graphs, g.Name)
	l.logger.Debug("Added section", zap.String("graph", g.Name), zap.Int("nodes", g.Len()))
}

func (l *Loader) describe(wp waypoint) string {
	if wp.distance > l.far {
		return l.format.Distance(wp.distance) + " away: " + wp.description
	}
	return wp.description
}

func parseRow(rec []string) (row, error) {
	if len(rec) < 7 {
		return row{}, fmt.Errorf("%w: want at least 7 fields, got %d", ErrMalformedRow, len(rec))
	}
	var r row
	var err error
	if r.seq, err = strconv.Atoi(strings.TrimSpace(rec[0])); err != nil {
		return row{}, fmt.Errorf("%w: sequence: %v", ErrMalformedRow, err)
	}
	floats := []*float64{&r.lat, &r.lon, &r.elevation, &r.segment}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64); err != nil {
			return row{}, fmt.Errorf("%w: field %d: %v", ErrMalformedRow, i+2, err)
		}
	}
	if r.segment <= 0 {
		r.segment = math.NaN()
	}
	r.mark = strings.TrimSpace(rec[6]) == "1"
	return r, nil
}

func readWaypoints(in io.Reader) (map[int]waypoint, error) {
	r := csv.NewReader(in)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	named := map[int]waypoint{}
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			return named, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read waypoints: %w", err)
		}
		if len(rec) < 8 {
			return nil, fmt.Errorf("waypoint line %d: %w: want 8 fields, got %d", line, ErrMalformedRow, len(rec))
		}
		seq, err := strconv.Atoi(strings.TrimSpace(rec[6]))
		if err != nil {
			return nil, fmt.Errorf("waypoint line %d: %w: %v", line, ErrMalformedRow, err)
		}
		dist, err := strconv.ParseFloat(strings.TrimSpace(rec[7]), 64)
		if err != nil {
			return nil, fmt.Errorf("waypoint line %d: %w: %v", line, ErrMalformedRow, err)
		}
		named[seq] = waypoint{name: rec[4], description: rec[5], distance: dist}
	}
}
