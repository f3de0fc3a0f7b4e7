package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/dpup/trailgraph/internal/clients/gpx"
	"github.com/dpup/trailgraph/internal/clients/halfmile"
	"github.com/dpup/trailgraph/internal/config"
	"github.com/dpup/trailgraph/internal/export"
	"github.com/dpup/trailgraph/internal/lib/routing"
	"github.com/dpup/trailgraph/internal/lib/trail"
	"github.com/dpup/trailgraph/internal/lib/units"
	"github.com/dpup/trailgraph/internal/logging"
	"github.com/dpup/trailgraph/internal/metrics"
	"github.com/dpup/trailgraph/internal/services"
	"github.com/dpup/trailgraph/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "trailgraph",
		Usage: "Build trail graphs and locate hikers on them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				Value:   "trailgraph.yaml",
				EnvVars: []string{"TRAILGRAPH_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Graph store directory (overrides store.dir)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (overrides logging.level)",
			},
		},
		Commands: []*cli.Command{
			importCommand(),
			listCommand(),
			showCommand(),
			locateCommand(),
			exportCommand(),
			serveCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// env is what every command needs.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Registry
	store    *store.FileStore
	registry *routing.Registry
	format   *units.Formatter
}

func setup(c *cli.Context) (*env, error) {
	overrides := map[string]any{}
	if dir := c.String("store"); dir != "" {
		overrides["store.dir"] = dir
	}
	if lvl := c.String("log-level"); lvl != "" {
		overrides["logging.level"] = lvl
	}
	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	m := metrics.NewRegistry()
	s, err := store.NewFileStore(cfg.Store.Dir, store.WithLogger(logger), store.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	reg := routing.NewRegistry(s, cfg.Store.IdleTTL,
		routing.WithLogger(logger),
		routing.WithMetrics(m),
		routing.WithThresholds(cfg.Matching.Thresholds()),
		routing.WithMaxDistance(cfg.Matching.MaxDistanceToGraphMeters))

	system, err := units.ParseSystem(cfg.Display.System)
	if err != nil {
		return nil, err
	}
	tag, err := language.Parse(cfg.Display.Language)
	if err != nil {
		return nil, fmt.Errorf("invalid display language: %w", err)
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		store:    s,
		registry: reg,
		format:   units.NewFormatter(system, tag),
	}, nil
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Build graphs from GPX files or a Halfmile track and save them",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "gpx", Usage: "GPX file with tracks, routes or waypoints (repeatable)"},
			&cli.StringFlag{Name: "halfmile", Usage: "PCTA elevation CSV"},
			&cli.StringFlag{Name: "halfmile-waypoints", Usage: "Halfmile waypoint list (tab separated)"},
			&cli.StringSliceFlag{Name: "section", Usage: "Section names for the Halfmile track, in order (repeatable)"},
			&cli.StringFlag{Name: "location", Usage: "Location code stored on the imported graphs"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.logger.Sync() //nolint:errcheck
			ctx := c.Context

			graphOpts := []trail.Option{trail.WithThresholds(e.cfg.Matching.Thresholds())}

			var imported []string
			if path := c.String("halfmile"); path != "" {
				res, err := importHalfmile(e, path, c.String("halfmile-waypoints"), c.StringSlice("section"), graphOpts)
				if err != nil {
					return err
				}
				imported = append(imported, res.Graphs...)
			}

			loader := gpx.NewLoader(e.registry, e.cfg.Import.SkipDescriptions, e.logger, graphOpts...)
			for _, path := range c.StringSlice("gpx") {
				res, err := loader.LoadFile(ctx, path)
				if err != nil {
					return err
				}
				imported = append(imported, res.Graphs...)
				fmt.Printf("%s: %d graphs, %d/%d waypoints placed\n",
					filepath.Base(path), len(res.Graphs), res.Inserted, res.Waypoints-res.Skipped)
			}

			if loc := c.String("location"); loc != "" {
				for _, name := range imported {
					if err := e.registry.Update(ctx, name, func(g *trail.Graph) error {
						g.LocationCode = loc
						return nil
					}); err != nil {
						return err
					}
				}
			}

			dirty := e.registry.Dirty()
			if err := e.registry.Save(ctx); err != nil {
				return err
			}
			fmt.Printf("Saved %d graphs to %s\n", len(dirty), e.store.Dir())
			return nil
		},
	}
}

func importHalfmile(e *env, track, waypoints string, sections []string, graphOpts []trail.Option) (halfmile.Result, error) {
	tf, err := os.Open(track)
	if err != nil {
		return halfmile.Result{}, err
	}
	defer tf.Close()

	loader := halfmile.NewLoader(e.registry, sections, e.logger,
		halfmile.WithFarWaypoint(e.cfg.Import.FarWaypointMeters),
		halfmile.WithGraphOptions(graphOpts...))

	if waypoints == "" {
		return loader.Load(tf, nil)
	}
	wf, err := os.Open(waypoints)
	if err != nil {
		return halfmile.Result{}, err
	}
	defer wf.Close()
	return loader.Load(tf, wf)
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored graphs",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			names, err := e.store.List(c.Context)
			if err != nil {
				return err
			}
			for _, name := range names {
				entry, err := e.store.Describe(c.Context, name)
				if err != nil {
					return err
				}
				fmt.Printf("%-30s %7d nodes  %-6s saved %s\n",
					name, entry.Nodes, entry.Location, entry.SavedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Summarize a graph",
		ArgsUsage: "NAME",
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				return cli.Exit("show requires a graph name", 2)
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			return e.registry.View(c.Context, name, func(g *trail.Graph) error {
				sum := g.Summary()
				fmt.Printf("%s\n", g.Name)
				if g.StartDescription != "" || g.EndDescription != "" {
					fmt.Printf("  %s to %s\n", g.StartDescription, g.EndDescription)
				}
				fmt.Printf("  nodes     %d\n", sum.Nodes)
				fmt.Printf("  distance  %s\n", e.format.Distance(sum.Distance))
				fmt.Printf("  gain      %s\n", e.format.Elevation(sum.Gain))
				fmt.Printf("  loss      %s\n", e.format.Elevation(sum.Loss))
				for _, n := range g.Nodes() {
					if n.Description != "" {
						fmt.Printf("  %-10s %s\n", n.Name, n.Description)
					}
				}
				return nil
			})
		},
	}
}

func locateCommand() *cli.Command {
	return &cli.Command{
		Name:  "locate",
		Usage: "Find the graphs near a position",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "lat", Required: true},
			&cli.Float64Flag{Name: "lon", Required: true},
			&cli.Float64Flag{Name: "ele", Usage: "Elevation in meters; 0 means unknown"},
			&cli.StringFlag{Name: "direction", Value: "end", Usage: "Travel direction: end or start"},
			&cli.IntFlag{Name: "snap", Usage: "Snap-to-trail distance in meters (15, 30, 45, 60 or 75)"},
			&cli.BoolFlag{Name: "json", Usage: "Print matches as JSON"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			dir, err := trail.ParseDirection(c.String("direction"))
			if err != nil {
				return err
			}
			snap := c.Int("snap")
			if snap == 0 {
				snap = e.cfg.Matching.SnapToTrailMeters
			}

			observer := trail.NewNode(c.Float64("lat"), c.Float64("lon"), c.Float64("ele"))
			matches, err := e.registry.Locate(c.Context, observer, float64(snap), dir)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(matches)
			}
			for _, m := range matches {
				fmt.Printf("%-30s %-9s %s\n", m.Route, m.Classification, e.format.Distance(m.Distance))
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a graph as KML",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
		},
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				return cli.Exit("export requires a graph name", 2)
			}
			e, err := setup(c)
			if err != nil {
				return err
			}

			out := os.Stdout
			if path := c.String("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return e.registry.View(c.Context, name, func(g *trail.Graph) error {
				return export.KML(out, g)
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (overrides server.addr)"},
			&cli.StringFlag{Name: "replay", Usage: "GPX track to replay as simulated observer positions"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, e.logger)

			n, err := e.registry.LoadAll(ctx)
			if err != nil {
				return err
			}
			e.logger.Info("Loaded graphs", zap.Int("count", n))
			e.registry.StartEviction(ctx, e.cfg.Store.CleanupInterval)

			tracker := services.NewTracker(e.cfg.Observer.RecentWindow, services.WithTrackerLogger(e.logger))
			go tracker.Run(ctx)
			defer tracker.Stop()

			if path := c.String("replay"); path != "" {
				if err := startReplay(ctx, e, tracker, path); err != nil {
					return err
				}
			}

			trails, err := services.NewTrailsService(e.registry, tracker, e.cfg, e.logger)
			if err != nil {
				return err
			}
			handler := services.NewHandler(trails, tracker, e.metrics, e.logger)

			addr := e.cfg.Server.Addr
			if a := c.String("addr"); a != "" {
				addr = a
			}
			err = services.Serve(ctx, addr, handler.Router(), e.cfg.Server.ShutdownTimeout, e.logger)

			if saveErr := e.registry.Save(context.Background()); saveErr != nil {
				e.logger.Error("Failed to save graphs on shutdown", zap.Error(saveErr))
			}
			return err
		},
	}
}

func startReplay(ctx context.Context, e *env, tracker *services.Tracker, path string) error {
	nodes, err := gpx.ReadTrack(path)
	if err != nil {
		return err
	}
	positions := make([]services.Position, len(nodes))
	for i, n := range nodes {
		positions[i] = services.Position{Observer: n}
	}

	go func() {
		if err := tracker.Replay(ctx, positions, e.cfg.Observer.ReplayInterval); err != nil && ctx.Err() == nil {
			e.logger.Warn("Replay stopped", zap.Error(err))
		}
	}()
	e.logger.Info("Replaying track", zap.String("file", filepath.Base(path)), zap.Int("positions", len(positions)))
	return nil
}
