package v1

import (
	"fmt"
	"time"
)

// Event is the atomic unit of the system: one validated telemetry event.
// It separates the "Envelope" (System Attributes) from the "Letter" (Properties).
type Event struct {
	// --- System Attributes (The Envelope) ---

	// Name is the domain-specific event name (e.g., "pageview", "tool.invoked").
	// It is the primary routing key for aggregation and subscription matching.
	Name string `json:"name"`

	// DistinctID identifies the actor that generated this event.
	// Examples: "user:alice@example.com", "session:abc123", "apikey:prod-789"
	// This is the identity counted in unique-actor sets and presence tracking.
	// This field is REQUIRED and has no default value.
	DistinctID string `json:"distinct_id"`

	// Environment scopes the event to a deployment environment
	// (e.g., "production", "staging"). Aggregates never mix environments.
	Environment string `json:"environment"`

	// SessionID groups events belonging to one logical session. Optional.
	SessionID string `json:"session_id,omitempty"`

	// Timestamp is when the event happened in the real world (client-side clock).
	// This distinguishes it from IngestedAt (server-side clock).
	Timestamp time.Time `json:"timestamp"`

	// IngestedAt is when Beacon received the event (audit trail).
	// Set by the ingestion edge, not the client.
	IngestedAt time.Time `json:"ingested_at"`

	// --- User Payload (The Letter) ---

	// Properties is the domain-specific property bag. Values arrive as
	// dynamic JSON; breakdown counting stringifies them, value-sum tracking
	// extracts numerics.
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Validate ensures the event has all required system attributes.
func (e *Event) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}

	if e.DistinctID == "" {
		return fmt.Errorf("distinct_id is required")
	}

	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	return nil
}

// Clone returns a copy of the event with its own Properties map.
// Consumers that retain events past the dispatch call (ring buffer,
// broadcaster queues) hold clones so a caller mutating the original
// cannot corrupt them.
func (e *Event) Clone() *Event {
	cp := *e
	if e.Properties != nil {
		cp.Properties = make(map[string]interface{}, len(e.Properties))
		for k, v := range e.Properties {
			cp.Properties[k] = v
		}
	}
	return &cp
}

// PropertyString returns the property value rendered as a string, and
// whether the property is present. Breakdown maps key on this rendering
// so numeric and boolean values bucket deterministically.
func (e *Event) PropertyString(key string) (string, bool) {
	v, ok := e.Properties[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case nil:
		return "", true
	default:
		return fmt.Sprintf("%v", val), true
	}
}
