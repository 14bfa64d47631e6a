package domain

import "time"

// Event types published by the engine and session manager.
const (
	EventUncertaintyDeclared = "uncertainty_declared"
	EventConfidenceUpdated   = "confidence_updated"
	EventFieldConfirmed      = "field_confirmed"
	EventHypothesisResolved  = "hypothesis_resolved"
	EventSessionCompleted    = "session_completed"
)

// EventSourceGenesis is the source tag on everything this service publishes.
const EventSourceGenesis = "genesis"

// Event is the envelope handed to subscribers and external buses.
type Event struct {
	Type       string         `json:"event_type"`
	Payload    map[string]any `json:"payload"`
	Source     string         `json:"source"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
