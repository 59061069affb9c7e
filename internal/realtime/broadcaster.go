package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	v1 "github.com/beacon-lab/project-beacon/internal/api/v1"
)

// Sentinel errors surfaced by the broadcaster.
var (
	// ErrClosed is returned by Receive once the subscriber's queue is
	// drained after an unsubscribe or shutdown.
	ErrClosed = errors.New("subscription closed")

	// ErrUnknownSubscription is returned when unsubscribing a handle the
	// broadcaster does not know (already removed, or never registered).
	ErrUnknownSubscription = errors.New("unknown subscription")

	// ErrInvalidFilter rejects a subscription at registration time.
	ErrInvalidFilter = errors.New("invalid subscription filter")
)

// FilterOperator is a property predicate operator.
type FilterOperator string

const (
	OpEquals    FilterOperator = "equals"
	OpNotEquals FilterOperator = "not_equals"
	OpContains  FilterOperator = "contains" // substring, string-typed only
	OpIsSet     FilterOperator = "is_set"
	OpIsNotSet  FilterOperator = "is_not_set"
)

// ValidFilterOperator reports whether op is a supported predicate operator.
func ValidFilterOperator(op FilterOperator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpIsSet, OpIsNotSet:
		return true
	}
	return false
}

// PropertyFilter is one predicate evaluated against the event's property bag.
type PropertyFilter struct {
	Key      string         `json:"key"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value,omitempty"`
}

// Subscription declares what a subscriber wants to see. An empty Events
// list means all event names; an empty Environment means all environments.
type Subscription struct {
	Events      []string         `json:"events,omitempty"`
	Environment string           `json:"environment,omitempty"`
	Filters     []PropertyFilter `json:"filters,omitempty"`
}

// validate rejects malformed filter predicates at registration time so a
// bad subscription never silently matches nothing.
func (s Subscription) validate() error {
	for _, f := range s.Filters {
		if f.Key == "" {
			return fmt.Errorf("%w: filter key must not be empty", ErrInvalidFilter)
		}
		if !ValidFilterOperator(f.Operator) {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, f.Operator)
		}
	}
	return nil
}

// matches evaluates the subscription against a candidate event.
//
// Order: event-name allow-list, environment filter, then each property
// predicate. A missing property satisfies only is_not_set; equals on a
// missing property always rejects.
func (s Subscription) matches(evt *v1.Event) bool {
	if len(s.Events) > 0 {
		found := false
		for _, name := range s.Events {
			if name == evt.Name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if s.Environment != "" && s.Environment != evt.Environment {
		return false
	}

	for _, f := range s.Filters {
		if !f.matches(evt) {
			return false
		}
	}
	return true
}

func (f PropertyFilter) matches(evt *v1.Event) bool {
	value, present := evt.PropertyString(f.Key)

	switch f.Operator {
	case OpIsSet:
		return present
	case OpIsNotSet:
		return !present
	case OpEquals:
		return present && value == f.Value
	case OpNotEquals:
		// A missing property satisfies only is_not_set.
		return present && value != f.Value
	case OpContains:
		if !present {
			return false
		}
		// Substring match applies to string-typed properties only.
		if _, isString := evt.Properties[f.Key].(string); !isString {
			return false
		}
		return strings.Contains(value, f.Value)
	}
	return false
}

// Delivery is one Receive result. Skipped carries the number of events
// dropped for this subscriber since its previous receive (lag signal).
type Delivery struct {
	Event   *v1.Event
	Skipped int64
}

// Subscriber is the handle returned by Subscribe. Receive and Close are
// safe to call concurrently with publishes and with each other.
type Subscriber struct {
	ID  uuid.UUID
	Sub Subscription

	mu      sync.Mutex // guards queue sends vs. close
	queue   chan *v1.Event
	closed  bool
	skipped atomic.Int64
}

// Receive blocks until the next matching event, the subscription closes,
// or ctx is done. The returned Delivery carries the skipped-event count
// accumulated while this subscriber lagged.
func (s *Subscriber) Receive(ctx context.Context) (Delivery, error) {
	select {
	case evt, ok := <-s.queue:
		if !ok {
			return Delivery{}, ErrClosed
		}
		return Delivery{Event: evt, Skipped: s.skipped.Swap(0)}, nil
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// enqueue offers the event without ever blocking the publisher. When the
// queue is full the oldest unread event is dropped and counted as skipped,
// so the subscriber sees an order-preserving subsequence with gaps.
func (s *Subscriber) enqueue(evt *v1.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- evt:
		return
	default:
	}

	// Full: drop the oldest, then retry once. A concurrent Receive may
	// have freed a slot in between; either way the publisher never waits.
	select {
	case <-s.queue:
		s.skipped.Add(1)
	default:
	}
	select {
	case s.queue <- evt:
	default:
		s.skipped.Add(1)
	}
}

// close makes pending and future Receive calls return ErrClosed once the
// remaining queued events are drained. Idempotent.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// BroadcasterMetrics is a point-in-time view of connection activity.
type BroadcasterMetrics struct {
	TotalConnections  int64 `json:"total_connections"`
	ActiveConnections int   `json:"active_connections"`
	EventsTotal       int64 `json:"events_total"`
}

// Broadcaster fans every published event out to matching subscribers.
// Publish never blocks on a slow subscriber: each subscriber owns a
// bounded queue with drop-oldest overflow.
type Broadcaster struct {
	queueCap int

	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber

	totalConnections atomic.Int64
	eventsTotal      atomic.Int64
}

// NewBroadcaster creates a broadcaster whose subscribers each buffer up to
// queueCap undelivered events.
func NewBroadcaster(queueCap int) *Broadcaster {
	if queueCap <= 0 {
		queueCap = 64
	}
	return &Broadcaster{
		queueCap:    queueCap,
		subscribers: make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers the subscription and returns its handle.
// Malformed filters are rejected with ErrInvalidFilter.
func (b *Broadcaster) Subscribe(sub Subscription) (*Subscriber, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	s := &Subscriber{
		ID:    uuid.New(),
		Sub:   sub,
		queue: make(chan *v1.Event, b.queueCap),
	}

	b.mu.Lock()
	b.subscribers[s.ID] = s
	b.mu.Unlock()
	b.totalConnections.Add(1)

	slog.Debug("[Broadcaster] Subscriber registered",
		"subscription_id", s.ID,
		"events", sub.Events,
		"environment", sub.Environment,
		"filters", len(sub.Filters),
	)
	return s, nil
}

// Unsubscribe removes the handle and wakes any pending Receive. Returns
// ErrUnknownSubscription for handles the broadcaster no longer tracks;
// repeated calls are safe.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) error {
	b.mu.Lock()
	s, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	if !ok {
		return ErrUnknownSubscription
	}
	s.close()

	slog.Debug("[Broadcaster] Subscriber removed", "subscription_id", id)
	return nil
}

// Publish fans the event out to every matching subscriber. Called from
// the ingestion hot path: must never block and never fail.
func (b *Broadcaster) Publish(evt *v1.Event) {
	b.eventsTotal.Add(1)

	b.mu.RLock()
	// Copy handles so delivery happens outside the registry lock.
	targets := make([]*Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if s.Sub.matches(evt) {
			s.enqueue(evt)
		}
	}
}

// Close unsubscribes everyone. Used during shutdown.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[uuid.UUID]*Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Metrics reports connection counters.
func (b *Broadcaster) Metrics() BroadcasterMetrics {
	b.mu.RLock()
	active := len(b.subscribers)
	b.mu.RUnlock()

	return BroadcasterMetrics{
		TotalConnections:  b.totalConnections.Load(),
		ActiveConnections: active,
		EventsTotal:       b.eventsTotal.Load(),
	}
}
