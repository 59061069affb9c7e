package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/storage"
)

const flushStoreTimeout = 30 * time.Second

// flushScheduler periodically drains the aggregation buffer and forwards
// snapshots to the aggregate store. It runs independently of ingestion,
// so a slow storage write can never delay event intake.
type flushScheduler struct {
	interval time.Duration
	buffer   *AggregationBuffer
	store    storage.AggregateStore
}

func newFlushScheduler(interval time.Duration, buffer *AggregationBuffer, store storage.AggregateStore) *flushScheduler {
	return &flushScheduler{
		interval: interval,
		buffer:   buffer,
		store:    store,
	}
}

// run flushes on a fixed interval until ctx is cancelled, then performs a
// final drain so accumulated buckets are not lost on clean shutdown.
func (f *flushScheduler) run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	slog.Info("[Flush] Starting flush scheduler", "interval", f.interval)

	for {
		select {
		case <-ticker.C:
			f.flushOnce(ctx)
		case <-ctx.Done():
			slog.Info("[Flush] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), flushStoreTimeout)
			defer cancel()

			slog.Info("[Flush] Running final flush before shutdown...")
			f.flushOnce(shutdownCtx)
			slog.Info("[Flush] Final flush complete")

			return
		}
	}
}

// flushOnce drains the buffer and forwards the cycle's snapshots. A failed
// store call drops the cycle: re-inserting the detached buckets into the
// live buffer would double-count later increments sharing the same key.
func (f *flushScheduler) flushOnce(ctx context.Context) {
	snapshots := f.buffer.Flush()
	if len(snapshots) == 0 {
		slog.Debug("[Flush] No buckets accumulated this cycle")
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, flushStoreTimeout)
	defer cancel()

	if err := f.store.BatchStore(storeCtx, snapshots); err != nil {
		slog.Error("[Flush] Store rejected cycle, dropping snapshots",
			"error", err,
			"buckets", len(snapshots),
		)
		return
	}

	slog.Info("[Flush] Cycle complete", "buckets", len(snapshots))
}

// cleanupSweeper periodically evicts stale presence records and expired
// rate windows. Memory reclamation only: liveness and rate reads are
// computed fresh and never depend on the sweep having run.
type cleanupSweeper struct {
	interval    time.Duration
	presenceTTL time.Duration
	presence    *PresenceTracker
	rates       *RateCounter
}

func newCleanupSweeper(interval, presenceTTL time.Duration, presence *PresenceTracker, rates *RateCounter) *cleanupSweeper {
	return &cleanupSweeper{
		interval:    interval,
		presenceTTL: presenceTTL,
		presence:    presence,
		rates:       rates,
	}
}

func (c *cleanupSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	slog.Info("[Sweep] Starting cleanup sweeper",
		"interval", c.interval,
		"presence_ttl", c.presenceTTL,
	)

	for {
		select {
		case <-ticker.C:
			c.sweepOnce()
		case <-ctx.Done():
			slog.Info("[Sweep] Stopping (context cancelled)")
			return
		}
	}
}

func (c *cleanupSweeper) sweepOnce() {
	presenceRemoved := c.presence.Cleanup(c.presenceTTL)
	windowsRemoved := c.rates.Cleanup()

	if presenceRemoved > 0 || windowsRemoved > 0 {
		slog.Debug("[Sweep] Evicted stale state",
			"presence_records", presenceRemoved,
			"rate_windows", windowsRemoved,
		)
	}
}
