package types

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the record store.
const (
	EventClaimSaved    = "claim_saved"
	EventClaimAccessed = "claim_accessed"
	EventClaimUpdated  = "claim_updated"
	EventClaimDeleted  = "claim_deleted"
)

// Event is an immutable log entry recording an action on an entity.
type Event struct {
	// EventID is a time-ordered (version 7) UUID
	EventID string `json:"event_id"`

	// EventType is a free-form tag such as "claim_saved"
	EventType string `json:"event_type"`

	// EntityID references the subject, typically a claim ID. The entity
	// need not exist.
	EntityID string `json:"entity_id"`

	// Data carries opaque auxiliary context
	Data map[string]any `json:"data"`

	// Timestamp is set at creation
	Timestamp time.Time `json:"timestamp"`

	// UserID optionally identifies the acting user
	UserID *string `json:"user_id"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(eventType, entityID string, data map[string]any) *Event {
	if data == nil {
		data = map[string]any{}
	}
	return &Event{
		EventID:   NewEventID(),
		EventType: eventType,
		EntityID:  entityID,
		Data:      data,
		Timestamp: Now(),
	}
}

// NewEventID returns a version 7 UUID so that IDs sort by creation time.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ApplyDefaults fills a missing ID, timestamp and data map.
func (e *Event) ApplyDefaults() {
	if e.EventID == "" {
		e.EventID = NewEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = Now()
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
}
