package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/trailgraph/internal/cache"
	"github.com/dpup/trailgraph/internal/lib/trail"
	"github.com/dpup/trailgraph/internal/metrics"
	"github.com/dpup/trailgraph/internal/store"
)

// Registry holds named graphs. Graphs added or modified in memory are pinned
// until saved; graphs loaded from the store are dropped after sitting idle.
type Registry struct {
	store      Store
	graphs     *cache.Cache[*trail.Graph]
	mu         sync.RWMutex // guards graph contents and dirty
	dirty      map[string]bool
	thresholds trail.Thresholds
	maxDist    float64
	logger     *zap.Logger
	metrics    *metrics.Registry
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics records registry activity.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithThresholds sets the thresholds given to loaded graphs and used for
// extent checks.
func WithThresholds(t trail.Thresholds) Option {
	return func(r *Registry) { r.thresholds = t }
}

// WithMaxDistance sets how far from a graph an observer is still Nearby.
func WithMaxDistance(meters float64) Option {
	return func(r *Registry) { r.maxDist = meters }
}

// NewRegistry creates a registry over store. Loaded graphs idle for longer
// than idleTTL become eligible for eviction.
func NewRegistry(s Store, idleTTL time.Duration, opts ...Option) *Registry {
	r := &Registry{
		store:      s,
		dirty:      make(map[string]bool),
		thresholds: trail.DefaultThresholds(),
		maxDist:    75,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.graphs = cache.New[*trail.Graph](idleTTL, cache.WithEvictHook[*trail.Graph](r.evicted))
	return r
}

func (r *Registry) evicted(name string, _ *trail.Graph) {
	r.logger.Debug("Evicted idle graph", zap.String("graph", name))
	if r.metrics != nil {
		r.metrics.GraphEvictionsTotal.Inc()
	}
	r.updateGauge()
}

func (r *Registry) updateGauge() {
	if r.metrics == nil {
		return
	}
	stats := r.graphs.Stats()
	r.metrics.GraphsActive.Set(float64(stats.TotalEntries))
	r.metrics.GraphsPinned.Set(float64(stats.PinnedEntries))
}

// StartEviction periodically drops idle graphs until ctx is done.
func (r *Registry) StartEviction(ctx context.Context, interval time.Duration) {
	r.graphs.StartPeriodicCleanup(ctx, interval, r.logger)
}

// Add makes g active under its name, replacing any graph of the same name.
// It stays in memory until saved.
func (r *Registry) Add(g *trail.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.graphs.SetPinned(g.Name, g, "add")
	r.dirty[g.Name] = true
	r.updateGauge()
}

// Remove drops name from memory and from the store.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.graphs.Delete(name)
	delete(r.dirty, name)
	r.updateGauge()

	if err := r.store.Delete(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete graph %s: %w", name, err)
	}
	return nil
}

// Get returns the named graph, loading it from the store if it is not
// active. Load failures are logged and reported as absent.
func (r *Registry) Get(ctx context.Context, name string) (*trail.Graph, bool) {
	if g, ok := r.graphs.Get(name); ok {
		return g, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx, name)
}

// load requires r.mu held for writing.
func (r *Registry) load(ctx context.Context, name string) (*trail.Graph, bool) {
	if g, ok := r.graphs.Get(name); ok {
		return g, true
	}

	snap, err := r.store.Load(ctx, name)
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, store.ErrNotFound):
			result = "missing"
		case errors.Is(err, trail.ErrCorruptGraph):
			result = "corrupt"
			r.logger.Error("Stored graph is corrupt", zap.String("graph", name), zap.Error(err))
		default:
			r.logger.Error("Failed to load graph", zap.String("graph", name), zap.Error(err))
		}
		r.recordLoad(result)
		return nil, false
	}

	g, err := trail.FromSnapshot(snap, trail.WithLogger(r.logger), trail.WithThresholds(r.thresholds))
	if err != nil {
		r.logger.Error("Stored graph is corrupt", zap.String("graph", name), zap.Error(err))
		r.recordLoad("corrupt")
		return nil, false
	}

	r.graphs.Set(name, g, "store")
	r.recordLoad("ok")
	r.updateGauge()
	r.logger.Info("Loaded graph", zap.String("graph", name), zap.Int("nodes", g.Len()))
	return g, true
}

func (r *Registry) recordLoad(result string) {
	if r.metrics != nil {
		r.metrics.GraphLoadsTotal.WithLabelValues(result).Inc()
	}
}

// LoadAll makes every stored graph active. Graphs that fail to load are
// skipped; the count of loaded graphs is returned.
func (r *Registry) LoadAll(ctx context.Context) (int, error) {
	names, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list graphs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, name := range names {
		if _, ok := r.load(ctx, name); ok {
			loaded++
		}
	}
	return loaded, nil
}

// Names returns the sorted names of active and stored graphs.
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	stored, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}

	seen := make(map[string]bool, len(stored))
	for _, name := range stored {
		seen[name] = true
	}
	r.graphs.Range(func(name string, _ *trail.Graph) bool {
		seen[name] = true
		return true
	})

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Active returns the sorted names of graphs currently in memory.
func (r *Registry) Active() []string {
	var names []string
	r.graphs.Range(func(name string, _ *trail.Graph) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// InsertWaypoint offers n to every graph, in memory or stored, whose extent
// padded by the edge match distance contains it. Stored graphs are loaded
// as needed. A waypoint can land on several graphs where they meet. It
// reports whether any graph accepted it.
func (r *Registry) InsertWaypoint(ctx context.Context, n trail.Node) bool {
	stored, err := r.store.Extents(ctx)
	if err != nil {
		r.logger.Warn("Failed to read stored extents", zap.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	extents := make(map[string]trail.Extent, len(stored))
	for name, ext := range stored {
		extents[name] = ext
	}
	// Graphs in memory, idle ones included, may have moved past the store
	for _, name := range r.graphs.Keys() {
		if entry, ok := r.graphs.GetWithMetadata(name); ok {
			extents[name] = entry.Value.Extent()
		}
	}

	names := make([]string, 0, len(extents))
	for name, ext := range extents {
		if ext.ContainsWithin(n.Point(), r.thresholds.EdgeMatch) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	inserted := false
	for _, name := range names {
		g, ok := r.resident(ctx, name)
		if !ok {
			continue
		}
		result := g.InsertWaypoint(n)
		if r.metrics != nil {
			r.metrics.WaypointsTotal.WithLabelValues(result.String()).Inc()
		}
		if result.Ok() {
			inserted = true
			r.dirty[name] = true
			r.keep(name, g)
		}
	}
	return inserted
}

// resident returns the graph held in memory under name, even if it has gone
// idle, and loads it from the store otherwise. It requires r.mu held for
// writing.
func (r *Registry) resident(ctx context.Context, name string) (*trail.Graph, bool) {
	if entry, ok := r.graphs.GetWithMetadata(name); ok {
		return entry.Value, true
	}
	return r.load(ctx, name)
}

// keep pins a modified graph, putting it back if idle cleanup dropped it in
// the meantime.
func (r *Registry) keep(name string, g *trail.Graph) {
	if !r.graphs.Pin(name) {
		r.graphs.SetPinned(name, g, "update")
	}
	r.updateGauge()
}

// View calls fn with the named graph under a read lock.
func (r *Registry) View(ctx context.Context, name string, fn func(*trail.Graph) error) error {
	g, ok := r.Get(ctx, name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGraphNotFound, name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(g)
}

// Update calls fn with the named graph under a write lock. A successful
// update keeps the graph in memory until it is saved.
func (r *Registry) Update(ctx context.Context, name string, fn func(*trail.Graph) error) error {
	g, ok := r.Get(ctx, name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGraphNotFound, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(g); err != nil {
		return err
	}
	r.dirty[name] = true
	r.keep(name, g)
	return nil
}

// Dirty returns the sorted names of graphs with unsaved changes.
func (r *Registry) Dirty() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.dirty))
	for name := range r.dirty {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save persists every graph with unsaved changes. Saved graphs become
// eligible for idle eviction.
func (r *Registry) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name := range r.dirty {
		if err := r.saveLocked(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveGraph persists a single graph.
func (r *Registry) SaveGraph(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(ctx, name)
}

func (r *Registry) saveLocked(ctx context.Context, name string) error {
	entry, ok := r.graphs.GetWithMetadata(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGraphNotFound, name)
	}
	if err := r.store.Save(ctx, entry.Value.Snapshot()); err != nil {
		return fmt.Errorf("failed to save graph %s: %w", name, err)
	}
	delete(r.dirty, name)
	r.graphs.Unpin(name)
	r.updateGauge()
	r.logger.Info("Saved graph", zap.String("graph", name))
	return nil
}

// Entry finds where observer joins the named graph.
func (r *Registry) Entry(ctx context.Context, name string, observer trail.Node, snapMeters float64, dir trail.Direction) (*trail.Entry, float64, error) {
	var entry *trail.Entry
	var dist float64
	err := r.View(ctx, name, func(g *trail.Graph) error {
		entry, dist = g.EntryEdge(observer, snapMeters, dir)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	r.recordEntry(entry)
	return entry, dist, nil
}

func (r *Registry) recordEntry(entry *trail.Entry) {
	if r.metrics == nil {
		return
	}
	result := "off_trail"
	switch {
	case entry == nil:
	case entry.OnNode:
		result = "node"
	default:
		result = "edge"
	}
	r.metrics.EntriesTotal.WithLabelValues(result).Inc()
}

// Locate classifies every known graph against the observer, closest first.
func (r *Registry) Locate(ctx context.Context, observer trail.Node, snapMeters float64, dir trail.Direction) ([]Match, error) {
	names, err := r.Names(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, name := range names {
		entry, dist, err := r.Entry(ctx, name, observer, snapMeters, dir)
		if err != nil {
			continue
		}

		m := Match{Route: name, Distance: dist, Entry: entry, Classification: Distant}
		switch {
		case entry != nil:
			m.Classification = OnTrail
		case dist <= r.maxDist:
			m.Classification = Nearby
		}
		matches = append(matches, m)
	}

	// On-trail matches first, then by distance
	sort.SliceStable(matches, func(i, j int) bool {
		mi, mj := matches[i], matches[j]
		if (mi.Classification == OnTrail) != (mj.Classification == OnTrail) {
			return mi.Classification == OnTrail
		}
		return mi.Distance < mj.Distance
	})
	return matches, nil
}
