// Package events builds run-log events and delivers them to sinks: the
// SQLite history, a JSON lines stream, or nowhere.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opencode-ai/uiwalk/internal/models"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// Sink receives run events.
type Sink interface {
	Emit(ctx context.Context, event *models.Event) error
}

// NoopSink drops all events.
type NoopSink struct{}

// Emit ignores events.
func (NoopSink) Emit(ctx context.Context, event *models.Event) error {
	return nil
}

// RepositorySink persists events through a Repository.
type RepositorySink struct {
	mu   sync.Mutex
	repo Repository
}

// NewRepositorySink creates a database-backed sink.
func NewRepositorySink(repo Repository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

// Emit persists the event.
func (s *RepositorySink) Emit(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		return errors.New("event repository is required")
	}
	return s.repo.Create(ctx, event)
}

// JSONLSink writes events as JSON lines.
type JSONLSink struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJSONLSink writes to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{encoder: json.NewEncoder(w)}
}

// Emit encodes one line.
func (s *JSONLSink) Emit(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encoder.Encode(event)
}

// MultiSink fans out to every sink and joins their errors.
type MultiSink []Sink

// Emit delivers to all sinks.
func (m MultiSink) Emit(ctx context.Context, event *models.Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds a run event with a fresh ID and the payload encoded.
func New(eventType models.EventType, runID string, payload any, metadata map[string]string) (*models.Event, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		raw = data
	}
	return &models.Event{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Type:       eventType,
		EntityType: models.EntityTypeRun,
		EntityID:   runID,
		Payload:    raw,
		Metadata:   metadata,
	}, nil
}

// Emit builds and delivers a run event.
func Emit(ctx context.Context, sink Sink, eventType models.EventType, runID string, payload any, metadata map[string]string) error {
	if sink == nil {
		return nil
	}
	event, err := New(eventType, runID, payload, metadata)
	if err != nil {
		return err
	}
	return sink.Emit(ctx, event)
}

// RunFinishedType maps a terminal status to its event type.
func RunFinishedType(status models.RunStatus) models.EventType {
	switch status {
	case models.RunStatusSuccess:
		return models.EventTypeRunSucceeded
	case models.RunStatusCancelled:
		return models.EventTypeRunCancelled
	default:
		return models.EventTypeRunFailed
	}
}
