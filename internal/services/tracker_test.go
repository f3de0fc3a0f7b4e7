package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/trailgraph/internal/lib/trail"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func runTracker(t *testing.T, opts ...TrackerOption) *Tracker {
	t.Helper()
	tr := NewTracker(3*time.Minute, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return tr
}

func TestTracker_PublishAndFreshness(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	tr := runTracker(t, WithClock(clock.Now))

	_, ok := tr.Current()
	assert.False(t, ok)
	assert.Equal(t, FreshnessNone, tr.Freshness())

	updates := tr.Subscribe()
	p := Position{Observer: trail.NewNode(38.0, -120.0, 100), Direction: trail.TowardStart}
	require.NoError(t, tr.Publish(context.Background(), p))

	select {
	case got := <-updates:
		assert.Equal(t, p.Observer, got.Observer)
		assert.Equal(t, clock.Now(), got.At)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	cur, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, trail.TowardStart, cur.Direction)
	assert.Equal(t, FreshnessRecent, tr.Freshness())

	clock.Advance(4 * time.Minute)
	assert.Equal(t, FreshnessStale, tr.Freshness())
}

func TestTracker_SubscriberSeesLatest(t *testing.T) {
	tr := NewTracker(time.Minute)
	updates := tr.Subscribe()

	tr.apply(Position{Observer: trail.NewNode(38.0, -120.0, 100)})
	tr.apply(Position{Observer: trail.NewNode(38.1, -120.0, 100)})

	got := <-updates
	assert.Equal(t, 38.1, got.Observer.Latitude)
	select {
	case <-updates:
		t.Fatal("stale update left in channel")
	default:
	}
}

func TestTracker_Replay(t *testing.T) {
	tr := runTracker(t)
	updates := tr.Subscribe()

	path := []Position{
		{Observer: trail.NewNode(38.0, -120.000, 100)},
		{Observer: trail.NewNode(38.0, -119.999, 110)},
		{Observer: trail.NewNode(38.0, -119.998, 120)},
	}
	require.NoError(t, tr.Replay(context.Background(), path, time.Millisecond))

	assert.Eventually(t, func() bool {
		cur, ok := tr.Current()
		return ok && cur.Observer.Longitude == -119.998
	}, time.Second, time.Millisecond)
	assert.Equal(t, FreshnessSimulated, tr.Freshness())

	last := <-updates
	assert.True(t, last.Simulated)
}

func TestTracker_Stop(t *testing.T) {
	tr := NewTracker(time.Minute)
	done := make(chan struct{})
	go func() {
		tr.Run(context.Background())
		close(done)
	}()

	tr.Stop()
	tr.Stop()
	<-done

	// The queue may still take a fix; once full, publishing reports the stop.
	var err error
	for i := 0; i < 32 && err == nil; i++ {
		err = tr.Publish(context.Background(), Position{})
	}
	assert.ErrorIs(t, err, ErrTrackerStopped)
}

func TestTracker_ReplayCancelled(t *testing.T) {
	tr := runTracker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := []Position{{}, {}}
	assert.ErrorIs(t, tr.Replay(ctx, path, time.Hour), context.Canceled)
}
