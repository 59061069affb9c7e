package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	v1 "github.com/beacon-lab/project-beacon/internal/api/v1"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/beacon-lab/project-beacon/internal/core/tracking"
)

const (
	defaultFlushInterval   = 30 * time.Second
	defaultSweepInterval   = time.Minute
	defaultRateWindow      = time.Minute
	defaultPresenceTTL     = 5 * time.Minute
	defaultRingCapacity    = 1000
	defaultSubscriberQueue = 64
)

// Config holds the construction-time knobs of the engine. Zero values
// fall back to defaults; nothing is dynamically reconfigurable.
type Config struct {
	FlushInterval   time.Duration
	SweepInterval   time.Duration
	RateWindow      time.Duration
	PresenceTTL     time.Duration
	RingCapacity    int
	SubscriberQueue int
}

func (c Config) normalized() Config {
	n := c
	if n.FlushInterval <= 0 {
		n.FlushInterval = defaultFlushInterval
	}
	if n.SweepInterval <= 0 {
		n.SweepInterval = defaultSweepInterval
	}
	if n.RateWindow <= 0 {
		n.RateWindow = defaultRateWindow
	}
	if n.PresenceTTL <= 0 {
		n.PresenceTTL = defaultPresenceTTL
	}
	if n.RingCapacity <= 0 {
		n.RingCapacity = defaultRingCapacity
	}
	if n.SubscriberQueue <= 0 {
		n.SubscriberQueue = defaultSubscriberQueue
	}
	return n
}

// Engine is the real-time aggregation and streaming core. A single
// IngestEvent entry point fans each event into four independent consumer
// structures; the flush scheduler and cleanup sweeper run on their own
// timers, decoupled from the ingestion path.
type Engine struct {
	cfg   Config
	rules tracking.Repository
	store storage.AggregateStore

	buffer      *AggregationBuffer
	ring        *RingBuffer
	broadcaster *Broadcaster
	presence    *PresenceTracker
	rates       *RateCounter
}

// NewEngine wires the consumer structures together. rules and store are
// required collaborators.
func NewEngine(cfg Config, rules tracking.Repository, store storage.AggregateStore) *Engine {
	if rules == nil {
		panic("realtime: rules must not be nil")
	}
	if store == nil {
		panic("realtime: store must not be nil")
	}
	cfg = cfg.normalized()
	return &Engine{
		cfg:         cfg,
		rules:       rules,
		store:       store,
		buffer:      NewAggregationBuffer(),
		ring:        NewRingBuffer(cfg.RingCapacity),
		broadcaster: NewBroadcaster(cfg.SubscriberQueue),
		presence:    NewPresenceTracker(),
		rates:       NewRateCounter(cfg.RateWindow),
	}
}

// IngestEvent is the sole data-entry point, called once per validated
// event by the collector. Each consumer takes the event under its own
// lock for an O(1) critical section; none of them waits on I/O, so a
// slow store or subscriber never delays intake.
func (e *Engine) IngestEvent(evt *v1.Event) {
	// Retaining consumers share one read-only clone; the caller keeps
	// ownership of the original.
	retained := evt.Clone()

	e.buffer.Increment(retained, e.rules.ForEvent(retained.Name))
	e.ring.Publish(retained)
	e.broadcaster.Publish(retained)
	e.presence.RecordActivity(retained.DistinctID, retained.SessionID, contextOf(retained))
	e.rates.Record(retained.Name, retained.DistinctID)
}

// contextOf extracts a coarse "where is the actor" hint for presence
// display, when the event carries one.
func contextOf(evt *v1.Event) string {
	for _, key := range []string{"path", "screen", "location"} {
		if v, ok := evt.PropertyString(key); ok {
			return v
		}
	}
	return ""
}

// Run starts the flush scheduler and cleanup sweeper and blocks until ctx
// is cancelled, then drains the buffer one final time. Each periodic task
// contains its own failures: a failed tick is logged and the next tick
// proceeds normally.
func (e *Engine) Run(ctx context.Context) error {
	scheduler := newFlushScheduler(e.cfg.FlushInterval, e.buffer, e.store)
	sweeper := newCleanupSweeper(e.cfg.SweepInterval, e.cfg.PresenceTTL, e.presence, e.rates)

	done := make(chan struct{})
	go func() {
		sweeper.run(ctx)
		close(done)
	}()

	scheduler.run(ctx)
	<-done

	e.broadcaster.Close()
	return nil
}

// --- accessors exposed to transport layers ---

// Subscribe registers a dashboard subscription.
func (e *Engine) Subscribe(sub Subscription) (*Subscriber, error) {
	return e.broadcaster.Subscribe(sub)
}

// Unsubscribe removes a subscription; pending receives return promptly.
func (e *Engine) Unsubscribe(id uuid.UUID) error {
	return e.broadcaster.Unsubscribe(id)
}

// Recent returns up to n most recent events, most-recent first.
func (e *Engine) Recent(n int) []*v1.Event {
	return e.ring.Recent(n)
}

// Metrics reports broadcaster connection counters.
func (e *Engine) Metrics() BroadcasterMetrics {
	return e.broadcaster.Metrics()
}

// LiveUserCount counts actors seen within ttl.
func (e *Engine) LiveUserCount(ttl time.Duration) int {
	return e.presence.Count(ttl)
}

// LiveUsers lists actors seen within ttl, most recently seen first.
func (e *Engine) LiveUsers(ttl time.Duration) []PresenceRecord {
	return e.presence.List(ttl)
}

// PresenceTTL exposes the configured default liveness threshold.
func (e *Engine) PresenceTTL() time.Duration {
	return e.cfg.PresenceTTL
}

// CurrentRates reports coarse events-per-second for the current window.
func (e *Engine) CurrentRates() map[string]float64 {
	return e.rates.Rates()
}

// CurrentCounts reports raw per-event counts for the current window.
func (e *Engine) CurrentCounts() map[string]int64 {
	return e.rates.Counts()
}
