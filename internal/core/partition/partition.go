package partition

import "hash/fnv"

// Count is the fixed number of lock shards in the aggregation buffer.
// A power of two keeps the modulo cheap; 64 is plenty to keep ingestion
// hot-path contention negligible at dashboard event rates.
const Count = 64

// For returns the shard index for a given aggregation key string.
// Stable and deterministic: same key always maps to the same shard.
// Uses FNV-32a (stdlib, fast, well-distributed).
func For(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % Count
}
