package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/opencode-ai/uiwalk/internal/models"
)

type fakeRepo struct {
	last *models.Event
	err  error
}

func (r *fakeRepo) Create(ctx context.Context, event *models.Event) error {
	r.last = event
	return r.err
}

func TestEmitToRepository(t *testing.T) {
	repo := &fakeRepo{}
	sink := NewRepositorySink(repo)

	err := Emit(context.Background(), sink, models.EventTypeStepPassed, "run-1",
		models.StepPayload{Index: 1, Label: "select Epic tab"}, map[string]string{"recipe": "r"})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if repo.last == nil {
		t.Fatal("expected event to be created")
	}
	if repo.last.Type != models.EventTypeStepPassed {
		t.Fatalf("unexpected event type: %q", repo.last.Type)
	}
	if repo.last.EntityID != "run-1" || repo.last.EntityType != models.EntityTypeRun {
		t.Fatalf("unexpected entity: %s/%s", repo.last.EntityType, repo.last.EntityID)
	}

	var payload models.StepPayload
	if err := json.Unmarshal(repo.last.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Label != "select Epic tab" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestEmitRequiresRunID(t *testing.T) {
	if err := Emit(context.Background(), NoopSink{}, models.EventTypeRunStarted, "", nil, nil); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestJSONLSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf)
	for _, typ := range []models.EventType{models.EventTypeRunStarted, models.EventTypeRunSucceeded} {
		if err := Emit(context.Background(), sink, typ, "run-1", nil, nil); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var event models.Event
	if err := json.Unmarshal([]byte(lines[1]), &event); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if event.Type != models.EventTypeRunSucceeded {
		t.Fatalf("unexpected type %s", event.Type)
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	boom := errors.New("disk full")
	ok := &fakeRepo{}
	failing := &fakeRepo{err: boom}

	sink := MultiSink{NewRepositorySink(ok), nil, NewRepositorySink(failing)}
	err := Emit(context.Background(), sink, models.EventTypeRunStarted, "run-1", nil, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.last == nil {
		t.Fatal("healthy sink should still receive the event")
	}
}

func TestRunFinishedType(t *testing.T) {
	tests := map[models.RunStatus]models.EventType{
		models.RunStatusSuccess:   models.EventTypeRunSucceeded,
		models.RunStatusFailure:   models.EventTypeRunFailed,
		models.RunStatusCancelled: models.EventTypeRunCancelled,
	}
	for status, want := range tests {
		if got := RunFinishedType(status); got != want {
			t.Fatalf("%s: expected %s got %s", status, want, got)
		}
	}
}
