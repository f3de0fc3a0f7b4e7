package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/trailgraph/internal/lib/trail"
)

// ErrTrackerStopped is returned when publishing to a stopped tracker.
var ErrTrackerStopped = errors.New("tracker stopped")

// Position is one observer fix.
type Position struct {
	Observer  trail.Node      `json:"observer"`
	Direction trail.Direction `json:"direction"`
	Simulated bool            `json:"simulated"`
	At        time.Time       `json:"at"`
}

// Freshness describes how much a position can be trusted.
type Freshness string

const (
	FreshnessNone      Freshness = "none"
	FreshnessSimulated Freshness = "simulated"
	FreshnessRecent    Freshness = "recent"
	FreshnessStale     Freshness = "stale"
)

// Tracker holds the observer's latest position. Updates arrive over a
// channel and are published as immutable snapshots, so readers never see a
// half-applied fix.
type Tracker struct {
	current atomic.Pointer[Position]
	updates chan Position
	stop    chan struct{}
	once    sync.Once

	mu          sync.Mutex
	subscribers []chan Position

	recent time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithTrackerLogger sets the tracker's logger.
func WithTrackerLogger(logger *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker creates a tracker. Positions older than recent are stale.
func NewTracker(recent time.Duration, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		updates: make(chan Position, 16),
		stop:    make(chan struct{}),
		recent:  recent,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Publish queues p for Run to apply. A zero At is stamped with the current
// time.
func (t *Tracker) Publish(ctx context.Context, p Position) error {
	if p.At.IsZero() {
		p.At = t.now()
	}
	select {
	case t.updates <- p:
		return nil
	case <-t.stop:
		return ErrTrackerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies queued positions until ctx is done or Stop is called.
func (t *Tracker) Run(ctx context.Context) {
	t.logger.Info("Starting observer tracker")
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Observer tracker stopping due to context cancellation")
			return
		case <-t.stop:
			t.logger.Info("Observer tracker stopping due to stop signal")
			return
		case p := <-t.updates:
			t.apply(p)
		}
	}
}

// Stop ends Run and rejects further publishes.
func (t *Tracker) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *Tracker) apply(p Position) {
	snap := p
	t.current.Store(&snap)
	t.logger.Debug("Observer moved",
		zap.Float64("lat", p.Observer.Latitude),
		zap.Float64("lon", p.Observer.Longitude),
		zap.Bool("simulated", p.Simulated))

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subscribers {
		// Latest wins: drop the unread fix before offering the new one.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Subscribe returns a channel that receives each applied position. Slow
// readers only see the latest one.
func (t *Tracker) Subscribe() <-chan Position {
	ch := make(chan Position, 1)
	t.mu.Lock()
	t.subscribers = append(t.subscribers, ch)
	t.mu.Unlock()
	return ch
}

// Current returns the latest applied position.
func (t *Tracker) Current() (Position, bool) {
	p := t.current.Load()
	if p == nil {
		return Position{}, false
	}
	return *p, true
}

// Freshness classifies the latest position.
func (t *Tracker) Freshness() Freshness {
	p := t.current.Load()
	switch {
	case p == nil:
		return FreshnessNone
	case p.Simulated:
		return FreshnessSimulated
	case t.now().Sub(p.At) <= t.recent:
		return FreshnessRecent
	default:
		return FreshnessStale
	}
}

// Replay publishes positions one per tick as simulated fixes. It returns
// when all are sent, ctx is done or the tracker stops.
func (t *Tracker) Replay(ctx context.Context, positions []Position, interval time.Duration) error {
	if len(positions) == 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i, p := range positions {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.stop:
				return ErrTrackerStopped
			case <-ticker.C:
			}
		}
		p.Simulated = true
		p.At = time.Time{}
		if err := t.Publish(ctx, p); err != nil {
			return err
		}
	}
	t.logger.Info("Replay finished", zap.Int("positions", len(positions)))
	return nil
}
