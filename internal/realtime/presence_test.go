package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock drives a tracker or counter through simulated time.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time          { return c.current }
func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestTracker() (*PresenceTracker, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)}
	p := NewPresenceTracker()
	p.now = clock.now
	return p, clock
}

func TestPresenceTracker_CountWithinTTL(t *testing.T) {
	p, clock := newTestTracker()

	p.RecordActivity("alice", "sess-a", "/home")
	p.RecordActivity("bob", "", "")

	require.Equal(t, 2, p.Count(30*time.Second))

	// No further activity; past the TTL nobody is live.
	clock.advance(31 * time.Second)
	require.Equal(t, 0, p.Count(30*time.Second))
}

func TestPresenceTracker_LivenessIsExactlyAtBoundary(t *testing.T) {
	p, clock := newTestTracker()
	p.RecordActivity("alice", "", "")

	clock.advance(30 * time.Second)
	require.Equal(t, 1, p.Count(30*time.Second), "now - lastSeen == ttl is still live")

	clock.advance(time.Nanosecond)
	require.Equal(t, 0, p.Count(30*time.Second))
}

func TestPresenceTracker_UpsertRefreshesLastSeen(t *testing.T) {
	p, clock := newTestTracker()

	p.RecordActivity("alice", "sess-1", "/home")
	clock.advance(25 * time.Second)
	p.RecordActivity("alice", "", "/settings")
	clock.advance(25 * time.Second)

	// 50s since first activity, 25s since latest: still live.
	require.Equal(t, 1, p.Count(30*time.Second))

	users := p.List(30 * time.Second)
	require.Len(t, users, 1)
	require.Equal(t, "sess-1", users[0].SessionID, "empty session must not erase the previous one")
	require.Equal(t, "/settings", users[0].Context)
}

func TestPresenceTracker_ListNewestFirst(t *testing.T) {
	p, clock := newTestTracker()

	p.RecordActivity("alice", "", "")
	clock.advance(time.Second)
	p.RecordActivity("bob", "", "")

	users := p.List(time.Minute)
	require.Len(t, users, 2)
	require.Equal(t, "bob", users[0].DistinctID)
	require.Equal(t, "alice", users[1].DistinctID)
}

func TestPresenceTracker_CleanupUsesDoubledTTL(t *testing.T) {
	ttl := 30 * time.Second
	p, clock := newTestTracker()

	p.RecordActivity("alice", "", "")
	clock.advance(45 * time.Second)

	// Past the liveness boundary, but inside 2×ttl: record retained.
	require.Equal(t, 0, p.Count(ttl))
	require.Equal(t, 0, p.Cleanup(ttl))
	require.Equal(t, 1, p.Len())

	clock.advance(16 * time.Second) // 61s > 2×30s
	require.Equal(t, 1, p.Cleanup(ttl))
	require.Equal(t, 0, p.Len())
}

func TestPresenceTracker_CountIndependentOfSweep(t *testing.T) {
	// Liveness is a pure function of last-seen; a stale record that the
	// sweeper has not reclaimed yet never inflates the count.
	p, clock := newTestTracker()

	p.RecordActivity("alice", "", "")
	clock.advance(10 * time.Minute)

	require.Equal(t, 0, p.Count(30*time.Second))
	require.Equal(t, 1, p.Len(), "record retained until sweep")
}
