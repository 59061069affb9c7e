package realtime

import (
	"sync"

	v1 "github.com/beacon-lab/project-beacon/internal/api/v1"
)

// RingBuffer retains the most recent raw events so late-joining
// subscribers get an immediate historical snapshot before live delivery.
// Bounded FIFO: oldest evicted first. Stored events are treated as
// read-only by all consumers.
type RingBuffer struct {
	mu     sync.Mutex
	events []*v1.Event
	head   int // index of the oldest entry
	size   int
	cap    int
}

// NewRingBuffer creates a ring with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingBuffer{
		events: make([]*v1.Event, capacity),
		cap:    capacity,
	}
}

// Publish appends the event, evicting the oldest when full.
func (r *RingBuffer) Publish(evt *v1.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.size) % r.cap
	r.events[tail] = evt
	if r.size == r.cap {
		// Overwrote the oldest; advance head.
		r.head = (r.head + 1) % r.cap
	} else {
		r.size++
	}
}

// Recent returns up to n most recent events, most-recent first.
func (r *RingBuffer) Recent(n int) []*v1.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || r.size == 0 {
		return nil
	}
	if n > r.size {
		n = r.size
	}
	out := make([]*v1.Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.head + r.size - 1 - i + r.cap) % r.cap
		out = append(out, r.events[idx])
	}
	return out
}

// Len reports the number of retained events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
