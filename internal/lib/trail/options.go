package trail

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Thresholds configure spatial matching. All values are meters except
// SearchWindow, which counts nodes on either side of the nearest node.
type Thresholds struct {
	NodeMatch          float64
	EdgeMatch          float64
	SearchWindow       int
	ElevationTolerance float64
}

// DefaultThresholds returns the standard matching thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NodeMatch:          3.33,
		EdgeMatch:          10,
		SearchWindow:       3,
		ElevationTolerance: 15,
	}
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithThresholds overrides the matching thresholds.
func WithThresholds(t Thresholds) Option {
	return func(g *Graph) {
		g.thresholds = t
	}
}

// Direction of travel along a graph.
type Direction int

const (
	TowardEnd Direction = iota
	TowardStart
)

func (d Direction) String() string {
	if d == TowardStart {
		return "start"
	}
	return "end"
}

// ParseDirection accepts "end", "start" and their "to-" prefixed forms.
// An empty string means toward the end.
func ParseDirection(s string) (Direction, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "to-") {
	case "", "end":
		return TowardEnd, nil
	case "start":
		return TowardStart, nil
	}
	return TowardEnd, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
