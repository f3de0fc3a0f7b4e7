package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dpup/trailgraph/internal/lib/trail"
)

// EnvPrefix marks environment variables that override configuration.
// TRAILGRAPH__STORE__DIR sets store.dir.
const EnvPrefix = "TRAILGRAPH__"

// SnapToTrailOptions are the permitted snap distances in meters.
var SnapToTrailOptions = []int{15, 30, 45, 60, 75}

// Config represents the complete configuration
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Matching MatchingConfig `koanf:"matching"`
	Pace     PaceConfig     `koanf:"pace"`
	Display  DisplayConfig  `koanf:"display"`
	Observer ObserverConfig `koanf:"observer"`
	Import   ImportConfig   `koanf:"import"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig holds graph persistence settings
type StoreConfig struct {
	Dir string `koanf:"dir" validate:"required"`
	// IdleTTL is how long a loaded, unmodified graph stays in memory unused.
	IdleTTL         time.Duration `koanf:"idle_ttl" validate:"gt=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"gt=0"`
}

// MatchingConfig holds spatial matching thresholds, in meters
type MatchingConfig struct {
	NodeMatchMeters          float64 `koanf:"node_match_meters" validate:"gt=0"`
	EdgeMatchMeters          float64 `koanf:"edge_match_meters" validate:"gt=0"`
	SearchWindow             int     `koanf:"search_window" validate:"gte=1"`
	ElevationToleranceMeters float64 `koanf:"elevation_tolerance_meters" validate:"gte=0"`
	SnapToTrailMeters        int     `koanf:"snap_to_trail_meters" validate:"oneof=15 30 45 60 75"`
	MaxDistanceToGraphMeters float64 `koanf:"max_distance_to_graph_meters" validate:"gt=0"`
}

// Thresholds converts the matching settings for graph construction.
func (m MatchingConfig) Thresholds() trail.Thresholds {
	return trail.Thresholds{
		NodeMatch:          m.NodeMatchMeters,
		EdgeMatch:          m.EdgeMatchMeters,
		SearchWindow:       m.SearchWindow,
		ElevationTolerance: m.ElevationToleranceMeters,
	}
}

// PaceConfig holds the hiker's pace bias
type PaceConfig struct {
	Bias float64 `koanf:"bias" validate:"gte=0.5,lte=2"`
}

// DisplayConfig holds presentation settings
type DisplayConfig struct {
	System     string  `koanf:"system" validate:"oneof=metric imperial"`
	Language   string  `koanf:"language" validate:"required"`
	ZoomMeters float64 `koanf:"zoom_meters" validate:"gte=500,lte=40000"`
}

// ObserverConfig holds location feed settings
type ObserverConfig struct {
	RecentWindow     time.Duration `koanf:"recent_window" validate:"gt=0"`
	DefaultLatitude  float64       `koanf:"default_latitude" validate:"gte=-90,lte=90"`
	DefaultLongitude float64       `koanf:"default_longitude" validate:"gte=-180,lte=180"`
	DefaultElevation float64       `koanf:"default_elevation"`
	ReplayInterval   time.Duration `koanf:"replay_interval" validate:"gt=0"`
}

// ImportConfig holds loader settings
type ImportConfig struct {
	// SkipDescriptions lists GPX waypoint descriptions that are never inserted.
	SkipDescriptions []string `koanf:"skip_descriptions"`
	// FarWaypointMeters is the offset beyond which Halfmile waypoints are
	// annotated with their distance from the trail.
	FarWaypointMeters float64 `koanf:"far_waypoint_meters" validate:"gte=0"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `koanf:"level" validate:"oneof=debug info warn error"`
	Development bool   `koanf:"development"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Dir:             "data/graphs",
			IdleTTL:         30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Matching: MatchingConfig{
			NodeMatchMeters:          3.33,
			EdgeMatchMeters:          10,
			SearchWindow:             3,
			ElevationToleranceMeters: 15,
			SnapToTrailMeters:        15,
			MaxDistanceToGraphMeters: 75,
		},
		Pace: PaceConfig{
			Bias: 1.0,
		},
		Display: DisplayConfig{
			System:     "imperial",
			Language:   "en-US",
			ZoomMeters: 5000,
		},
		Observer: ObserverConfig{
			RecentWindow:     3 * time.Minute,
			DefaultLatitude:  40.0,
			DefaultLongitude: -121.0,
			DefaultElevation: 0,
			ReplayInterval:   time.Second,
		},
		Import: ImportConfig{
			SkipDescriptions:  []string{"Triangle, Red"},
			FarWaypointMeters: 30.48,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

var validate = validator.New()

// Load layers the defaults, an optional YAML file, TRAILGRAPH__ environment
// variables and explicit overrides (dotted keys), then validates the result.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
