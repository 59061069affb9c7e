package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/beacon-lab/project-beacon/internal/core/granularity"
)

// Key uniquely identifies one accumulator. Two events with the same key
// update the same bucket regardless of arrival order; every field is part
// of the identity, so keys are usable directly as map keys.
type Key struct {
	Event       string
	BucketStart time.Time // truncated to the granularity boundary, UTC
	Granularity granularity.Granularity
	Environment string
}

// KeyFor derives the bucket key for an event occurrence.
func KeyFor(event string, ts time.Time, g granularity.Granularity, environment string) Key {
	return Key{
		Event:       event,
		BucketStart: granularity.Truncate(ts, g),
		Granularity: g,
		Environment: environment,
	}
}

// Bucket is the mutable accumulator for one key. It is exclusively owned
// by the aggregation buffer until a flush detaches it; Snapshot produces
// the immutable value handed to storage.
type Bucket struct {
	Key        Key
	Count      int64
	Actors     map[string]struct{}
	ValueSum   decimal.Decimal
	Breakdowns map[string]map[string]int64 // property -> rendered value -> count
}

// NewBucket creates an empty accumulator for key.
func NewBucket(key Key) *Bucket {
	return &Bucket{
		Key:      key,
		Actors:   make(map[string]struct{}),
		ValueSum: decimal.Zero,
	}
}

// Observe folds one event occurrence into the bucket: count increment,
// unique-actor insertion, and value accumulation. All three updates are
// commutative, so no ordering is required within a key.
func (b *Bucket) Observe(distinctID string, value decimal.Decimal) {
	b.Count++
	b.Actors[distinctID] = struct{}{}
	if !value.IsZero() {
		b.ValueSum = b.ValueSum.Add(value)
	}
}

// ObserveBreakdown increments the breakdown counter for one property value.
func (b *Bucket) ObserveBreakdown(property, value string) {
	if b.Breakdowns == nil {
		b.Breakdowns = make(map[string]map[string]int64)
	}
	values, ok := b.Breakdowns[property]
	if !ok {
		values = make(map[string]int64)
		b.Breakdowns[property] = values
	}
	values[value]++
}

// Snapshot materializes the bucket into an immutable value: unique-set
// cardinality is resolved to a number and the breakdown maps are copied,
// so the snapshot stays valid after the live bucket mutates further.
func (b *Bucket) Snapshot() BucketSnapshot {
	snap := BucketSnapshot{
		Key:          b.Key,
		Count:        b.Count,
		UniqueActors: len(b.Actors),
		ValueSum:     b.ValueSum,
	}
	if len(b.Breakdowns) > 0 {
		snap.Breakdowns = make(map[string]map[string]int64, len(b.Breakdowns))
		for prop, values := range b.Breakdowns {
			cp := make(map[string]int64, len(values))
			for v, n := range values {
				cp[v] = n
			}
			snap.Breakdowns[prop] = cp
		}
	}
	return snap
}

// BucketSnapshot is the immutable flush output for one key.
type BucketSnapshot struct {
	Key          Key
	Count        int64
	UniqueActors int
	ValueSum     decimal.Decimal
	Breakdowns   map[string]map[string]int64
}
