// Package store persists graph snapshots on disk.
//
// A directory holds manifest.json, mapping graph names to snapshot files,
// and one snappy-compressed JSON snapshot per graph.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dpup/trailgraph/internal/lib/trail"
	"github.com/dpup/trailgraph/internal/metrics"
)

// ErrNotFound is returned for names absent from the manifest.
var ErrNotFound = errors.New("graph not found")

const (
	manifestFile    = "manifest.json"
	manifestVersion = 1
	snapshotExt     = ".json.sz"
)

// ManifestEntry describes one stored graph.
type ManifestEntry struct {
	File     string       `json:"file"`
	Nodes    int          `json:"nodes"`
	Extent   trail.Extent `json:"extent"`
	SavedAt  time.Time    `json:"saved_at"`
	Location string       `json:"location_code,omitempty"`
}

type manifest struct {
	Version int                      `json:"version"`
	Graphs  map[string]ManifestEntry `json:"graphs"`
}

// FileStore keeps snapshots in a directory. It is safe for concurrent use.
type FileStore struct {
	dir     string
	mu      sync.Mutex
	logger  *zap.Logger
	metrics *metrics.Registry
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the store's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *FileStore) { s.logger = logger }
}

// WithMetrics records store operations.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *FileStore) { s.metrics = m }
}

// NewFileStore opens dir, creating it if needed.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	s := &FileStore{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the store's directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// List returns the stored graph names in sorted order.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.Graphs))
	for name := range m.Graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Extents returns the recorded extent of every stored graph.
func (s *FileStore) Extents(ctx context.Context) (map[string]trail.Extent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	extents := make(map[string]trail.Extent, len(m.Graphs))
	for name, entry := range m.Graphs {
		extents[name] = entry.Extent
	}
	return extents, nil
}

// Describe returns the manifest entry for name.
func (s *FileStore) Describe(ctx context.Context, name string) (ManifestEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readManifest()
	if err != nil {
		return ManifestEntry{}, err
	}
	entry, ok := m.Graphs[name]
	if !ok {
		return ManifestEntry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return entry, nil
}

// Load reads and validates the snapshot stored under name. Undecodable or
// invalid data is reported with trail.ErrCorruptGraph.
func (s *FileStore) Load(ctx context.Context, name string) (snap trail.Snapshot, err error) {
	start := time.Now()
	defer func() { s.record("load", err, start) }()

	if err := ctx.Err(); err != nil {
		return trail.Snapshot{}, err
	}

	s.mu.Lock()
	m, err := s.readManifest()
	s.mu.Unlock()
	if err != nil {
		return trail.Snapshot{}, err
	}

	entry, ok := m.Graphs[name]
	if !ok {
		return trail.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	compressed, err := os.ReadFile(filepath.Join(s.dir, entry.File))
	if err != nil {
		return trail.Snapshot{}, fmt.Errorf("failed to read graph %s: %w", name, err)
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return trail.Snapshot{}, fmt.Errorf("%w: graph %s: %w", trail.ErrCorruptGraph, name, err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return trail.Snapshot{}, fmt.Errorf("%w: graph %s: %w", trail.ErrCorruptGraph, name, err)
	}
	if err := snap.Validate(); err != nil {
		return trail.Snapshot{}, fmt.Errorf("graph %s: %w", name, err)
	}
	return snap, nil
}

// Save writes snap under its name, replacing any previous version.
func (s *FileStore) Save(ctx context.Context, snap trail.Snapshot) (err error) {
	start := time.Now()
	defer func() { s.record("save", err, start) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	g, err := trail.FromSnapshot(snap)
	if err != nil {
		return fmt.Errorf("refusing to save graph %s: %w", snap.Name, err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal graph %s: %w", snap.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readManifest()
	if err != nil {
		return err
	}

	entry, exists := m.Graphs[snap.Name]
	if !exists {
		entry.File = uuid.NewString() + snapshotExt
	}
	if err := writeAtomic(filepath.Join(s.dir, entry.File), snappy.Encode(nil, data)); err != nil {
		return fmt.Errorf("failed to write graph %s: %w", snap.Name, err)
	}

	entry.Nodes = g.Len()
	entry.Extent = g.Extent()
	entry.SavedAt = time.Now().UTC()
	entry.Location = snap.LocationCode
	m.Graphs[snap.Name] = entry

	if err := s.writeManifest(m); err != nil {
		return err
	}
	s.logger.Debug("Saved graph", zap.String("graph", snap.Name), zap.String("file", entry.File), zap.Int("bytes", len(data)))
	return nil
}

// Delete removes name and its snapshot file.
func (s *FileStore) Delete(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { s.record("delete", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readManifest()
	if err != nil {
		return err
	}
	entry, ok := m.Graphs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.Graphs, name)
	if err := s.writeManifest(m); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, entry.File)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove graph file", zap.String("graph", name), zap.Error(err))
	}
	return nil
}

func (s *FileStore) readManifest() (manifest, error) {
	m := manifest{Version: manifestVersion, Graphs: map[string]ManifestEntry{}}

	data, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Graphs == nil {
		m.Graphs = map[string]ManifestEntry{}
	}
	return m, nil
}

func (s *FileStore) writeManifest(m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, manifestFile), data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func (s *FileStore) record(op string, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(op, err, time.Since(start))
	}
}

// writeAtomic writes through a temporary file so readers never see a
// partial file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
