// Package models defines the records persisted in the run history.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailure   RunStatus = "failure"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailure, RunStatusCancelled:
		return true
	}
	return false
}

// Run is one execution of a recipe.
type Run struct {
	ID      string    `json:"id"`
	Recipe  string    `json:"recipe"`
	Runtime string    `json:"runtime"`
	Status  RunStatus `json:"status"`

	// Vars are the resolved recipe variables.
	Vars map[string]string `json:"vars,omitempty"`

	StepsTotal     int    `json:"steps_total"`
	StepsCompleted int    `json:"steps_completed"`
	FailedStep     string `json:"failed_step,omitempty"`
	Reason         string `json:"reason,omitempty"`

	// Payload is the report or failure document returned to the caller.
	Payload json.RawMessage `json:"payload,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns the elapsed time of a finished run, zero otherwise.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks required fields.
func (r *Run) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(r.Recipe) == "" {
		validation.AddMessage("recipe", "recipe is required")
	}
	switch r.Status {
	case RunStatusRunning, RunStatusSuccess, RunStatusFailure, RunStatusCancelled:
	default:
		validation.AddMessage("status", "unknown status "+string(r.Status))
	}
	if r.StepsCompleted < 0 || r.StepsCompleted > r.StepsTotal {
		validation.AddMessage("steps_completed", "must be between 0 and steps_total")
	}
	return validation.Err()
}
