package realtime

import (
	"strconv"
	"strings"
	"sync"

	v1 "github.com/beacon-lab/project-beacon/internal/api/v1"
	"github.com/beacon-lab/project-beacon/internal/core/aggregate"
	"github.com/beacon-lab/project-beacon/internal/core/partition"
	"github.com/beacon-lab/project-beacon/internal/core/tracking"
)

// AggregationBuffer accumulates per-key counters, unique-actor sets, and
// property breakdowns between flushes. The key space is split across
// fixed lock shards (FNV hash of the key) so ingestion only contends on
// keys that hash together, never on the whole buffer.
type AggregationBuffer struct {
	shards [partition.Count]bufferShard
}

type bufferShard struct {
	mu      sync.Mutex
	buckets map[aggregate.Key]*aggregate.Bucket
}

// NewAggregationBuffer creates an empty buffer.
func NewAggregationBuffer() *AggregationBuffer {
	b := &AggregationBuffer{}
	for i := range b.shards {
		b.shards[i].buckets = make(map[aggregate.Key]*aggregate.Bucket)
	}
	return b
}

// shardKey renders the aggregation key for shard hashing. Every key field
// participates so buckets of the same event at different granularities
// spread across shards.
func shardKey(key aggregate.Key) string {
	var sb strings.Builder
	sb.WriteString(key.Event)
	sb.WriteByte('|')
	sb.WriteString(key.Environment)
	sb.WriteByte('|')
	sb.WriteString(string(key.Granularity))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(key.BucketStart.Unix(), 10))
	return sb.String()
}

// Increment folds one event into the accumulator of every granularity the
// tracking rule asks for. Never fails; breakdown keys absent from the
// event's properties are silently skipped.
func (b *AggregationBuffer) Increment(evt *v1.Event, rule tracking.Rule) {
	value := aggregate.ExtractDecimal(evt.Properties, rule.ValueField)

	for _, g := range rule.Granularities {
		key := aggregate.KeyFor(evt.Name, evt.Timestamp, g, evt.Environment)
		shard := &b.shards[partition.For(shardKey(key))]

		shard.mu.Lock()
		bucket, ok := shard.buckets[key]
		if !ok {
			bucket = aggregate.NewBucket(key)
			shard.buckets[key] = bucket
		}
		bucket.Observe(evt.DistinctID, value)
		for _, prop := range rule.Breakdowns {
			if v, present := evt.PropertyString(prop); present {
				bucket.ObserveBreakdown(prop, v)
			}
		}
		shard.mu.Unlock()
	}
}

// Flush atomically detaches every accumulated bucket and returns immutable
// snapshots. Each shard's map is replaced wholesale under its lock — never
// cleared key by key — so an increment racing with the flush lands either
// fully in the detached map or fully in the fresh one, never split.
func (b *AggregationBuffer) Flush() []aggregate.BucketSnapshot {
	var snapshots []aggregate.BucketSnapshot
	for i := range b.shards {
		shard := &b.shards[i]

		shard.mu.Lock()
		detached := shard.buckets
		shard.buckets = make(map[aggregate.Key]*aggregate.Bucket)
		shard.mu.Unlock()

		// Snapshot outside the critical section: the detached map is
		// exclusively ours now.
		for _, bucket := range detached {
			snapshots = append(snapshots, bucket.Snapshot())
		}
	}
	return snapshots
}

// Len reports the number of live buckets across all shards.
func (b *AggregationBuffer) Len() int {
	total := 0
	for i := range b.shards {
		shard := &b.shards[i]
		shard.mu.Lock()
		total += len(shard.buckets)
		shard.mu.Unlock()
	}
	return total
}
