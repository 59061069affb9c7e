package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/beacon-lab/project-beacon/internal/core/granularity"
)

func TestKeyFor_TruncatesBucketStart(t *testing.T) {
	ts := time.Date(2026, 2, 11, 10, 35, 42, 0, time.UTC)

	key := KeyFor("pageview", ts, granularity.Hour, "production")

	require.Equal(t, "pageview", key.Event)
	require.Equal(t, time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC), key.BucketStart)
	require.Equal(t, granularity.Hour, key.Granularity)
	require.Equal(t, "production", key.Environment)
}

func TestKeyFor_SameBucketSameKey(t *testing.T) {
	a := KeyFor("click", time.Date(2026, 2, 11, 10, 0, 5, 0, time.UTC), granularity.Minute, "prod")
	b := KeyFor("click", time.Date(2026, 2, 11, 10, 0, 55, 0, time.UTC), granularity.Minute, "prod")

	require.Equal(t, a, b, "events in the same minute must share an accumulator")
}

func TestBucket_Observe(t *testing.T) {
	b := NewBucket(KeyFor("click", time.Now(), granularity.Minute, "prod"))

	b.Observe("u1", decimal.Zero)
	b.Observe("u2", decimal.NewFromFloat(0.25))
	b.Observe("u1", decimal.NewFromFloat(0.75))

	require.Equal(t, int64(3), b.Count)
	require.Len(t, b.Actors, 2)
	require.True(t, decimal.NewFromInt(1).Equal(b.ValueSum))
}

func TestBucket_ObserveBreakdown(t *testing.T) {
	b := NewBucket(KeyFor("click", time.Now(), granularity.Minute, "prod"))

	b.ObserveBreakdown("browser", "firefox")
	b.ObserveBreakdown("browser", "firefox")
	b.ObserveBreakdown("browser", "chrome")
	b.ObserveBreakdown("os", "linux")

	require.Equal(t, int64(2), b.Breakdowns["browser"]["firefox"])
	require.Equal(t, int64(1), b.Breakdowns["browser"]["chrome"])
	require.Equal(t, int64(1), b.Breakdowns["os"]["linux"])
}

func TestBucket_SnapshotIsDetached(t *testing.T) {
	b := NewBucket(KeyFor("click", time.Now(), granularity.Minute, "prod"))
	b.Observe("u1", decimal.Zero)
	b.ObserveBreakdown("browser", "firefox")

	snap := b.Snapshot()

	// Mutations after the snapshot must not leak into it.
	b.Observe("u2", decimal.Zero)
	b.ObserveBreakdown("browser", "firefox")

	require.Equal(t, int64(1), snap.Count)
	require.Equal(t, 1, snap.UniqueActors)
	require.Equal(t, int64(1), snap.Breakdowns["browser"]["firefox"])
}
