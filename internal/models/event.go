package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes events in the run log.
type EventType string

const (
	// Run events
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunSucceeded EventType = "run.succeeded"
	EventTypeRunFailed    EventType = "run.failed"
	EventTypeRunCancelled EventType = "run.cancelled"

	// Step events
	EventTypeStepStarted EventType = "step.started"
	EventTypeStepPassed  EventType = "step.passed"
	EventTypeStepFailed  EventType = "step.failed"

	// Wait events
	EventTypeWaitFinished EventType = "wait.finished"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeRun    EntityType = "run"
	EntityTypeSystem EntityType = "system"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// RunStartedPayload is the payload for run.started events.
type RunStartedPayload struct {
	Recipe string            `json:"recipe"`
	Steps  int               `json:"steps"`
	Vars   map[string]string `json:"vars,omitempty"`
}

// RunFinishedPayload is the payload for run.succeeded, run.failed and run.cancelled events.
type RunFinishedPayload struct {
	Outcome        RunStatus `json:"outcome"`
	StepsCompleted int       `json:"steps_completed"`
	StepLabel      string    `json:"step_label,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
}

// StepPayload is the payload for step events.
type StepPayload struct {
	Index     int    `json:"index"`
	Label     string `json:"label"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// WaitPayload is the payload for wait.finished events.
type WaitPayload struct {
	Description string `json:"description"`
	Condition   string `json:"condition,omitempty"`
	Samples     int    `json:"samples"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	Result      string `json:"result"`
}
