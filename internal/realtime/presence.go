package realtime

import (
	"sort"
	"sync"
	"time"
)

// PresenceRecord is the last-seen state for one actor. Liveness is never
// stored as a boolean — it is derived from LastSeen at read time.
type PresenceRecord struct {
	DistinctID string    `json:"distinct_id"`
	LastSeen   time.Time `json:"last_seen"`
	SessionID  string    `json:"session_id,omitempty"`
	Context    string    `json:"context,omitempty"`
}

// PresenceTracker maintains a last-seen timestamp per actor. Counts and
// listings are computed fresh on every read, so they self-correct
// regardless of when the sweep last ran.
type PresenceTracker struct {
	mu      sync.RWMutex
	records map[string]PresenceRecord

	now func() time.Time // swapped in tests
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		records: make(map[string]PresenceRecord),
		now:     time.Now,
	}
}

// RecordActivity upserts the actor's last-seen to now. Empty sessionID or
// context leaves the previous value in place rather than erasing it.
func (p *PresenceTracker) RecordActivity(distinctID, sessionID, context string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.records[distinctID]
	rec.DistinctID = distinctID
	rec.LastSeen = p.now()
	if sessionID != "" {
		rec.SessionID = sessionID
	}
	if context != "" {
		rec.Context = context
	}
	p.records[distinctID] = rec
}

// isLive is the single liveness predicate: now − lastSeen ≤ ttl.
func (p *PresenceTracker) isLive(rec PresenceRecord, ttl time.Duration, now time.Time) bool {
	return now.Sub(rec.LastSeen) <= ttl
}

// Count returns how many actors are live at call time.
func (p *PresenceTracker) Count(ttl time.Duration) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	n := 0
	for _, rec := range p.records {
		if p.isLive(rec, ttl, now) {
			n++
		}
	}
	return n
}

// List returns the full records of all live actors, most recently seen first.
func (p *PresenceTracker) List(ttl time.Duration) []PresenceRecord {
	p.mu.RLock()
	now := p.now()
	out := make([]PresenceRecord, 0, len(p.records))
	for _, rec := range p.records {
		if p.isLive(rec, ttl, now) {
			out = append(out, rec)
		}
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// Cleanup evicts records silent for more than twice the ttl and reports
// how many were removed. The doubled threshold keeps a record around well
// past the liveness boundary, so a sweep can never disagree with a Count
// call made moments earlier. Memory reclamation only — correctness never
// depends on sweep timing.
func (p *PresenceTracker) Cleanup(ttl time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	removed := 0
	for id, rec := range p.records {
		if now.Sub(rec.LastSeen) > 2*ttl {
			delete(p.records, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of retained records, live or not.
func (p *PresenceTracker) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}
