package realtime

import (
	"sync"
	"time"
)

// RateCounter accumulates per-event counts and unique-actor sets in
// fixed-size time windows for coarse throughput display. It reports the
// current window only — a point-in-time snapshot, not a smoothed rolling
// average.
type RateCounter struct {
	windowSecs int64 // window size in whole seconds, never below 1

	mu      sync.Mutex
	windows map[int64]*rateWindow // keyed by window start (unix seconds)

	now func() time.Time // swapped in tests
}

type rateWindow struct {
	counts map[string]int64
	actors map[string]struct{}
}

// NewRateCounter creates a counter with the given window size.
func NewRateCounter(window time.Duration) *RateCounter {
	if window <= 0 {
		window = time.Minute
	}
	secs := int64(window / time.Second)
	if secs < 1 {
		// Buckets are keyed on whole unix seconds; a sub-second window
		// collapses to one-second buckets rather than a zero divisor.
		secs = 1
	}
	return &RateCounter{
		windowSecs: secs,
		windows:    make(map[int64]*rateWindow),
		now:        time.Now,
	}
}

// windowKey truncates an instant to its window start. Writer and reader
// use this same formula, so they agree on the bucket without coordination.
func (r *RateCounter) windowKey(t time.Time) int64 {
	sec := t.Unix()
	return sec - sec%r.windowSecs
}

// Record counts one event occurrence in the current window.
func (r *RateCounter) Record(eventName, distinctID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.windowKey(r.now())
	w, ok := r.windows[key]
	if !ok {
		w = &rateWindow{
			counts: make(map[string]int64),
			actors: make(map[string]struct{}),
		}
		r.windows[key] = w
	}
	w.counts[eventName]++
	w.actors[distinctID] = struct{}{}
}

// Counts returns per-event counts for the current window only.
func (r *RateCounter) Counts() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int64)
	if w, ok := r.windows[r.windowKey(r.now())]; ok {
		for name, n := range w.counts {
			out[name] = n
		}
	}
	return out
}

// Rates divides the current window's counts by the window size in
// seconds, yielding coarse events-per-second figures.
func (r *RateCounter) Rates() map[string]float64 {
	counts := r.Counts()
	seconds := float64(r.windowSecs)

	out := make(map[string]float64, len(counts))
	for name, n := range counts {
		out[name] = float64(n) / seconds
	}
	return out
}

// Rate returns the events-per-second figure for one event name.
func (r *RateCounter) Rate(eventName string) float64 {
	return float64(r.Counts()[eventName]) / float64(r.windowSecs)
}

// UniqueActors reports the distinct-actor cardinality of the current window.
func (r *RateCounter) UniqueActors() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.windows[r.windowKey(r.now())]; ok {
		return len(w.actors)
	}
	return 0
}

// Cleanup evicts windows older than ten window-lengths and reports how
// many were removed. Superseded windows are retained that long for
// inspection, then reclaimed.
func (r *RateCounter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.windowKey(r.now()) - 10*r.windowSecs
	removed := 0
	for key := range r.windows {
		if key < cutoff {
			delete(r.windows, key)
			removed++
		}
	}
	return removed
}
