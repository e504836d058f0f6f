package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/opencode-ai/uiwalk/internal/models"
)

type progressStep struct {
	out     io.Writer
	label   string
	started time.Time
	enabled bool
}

func startProgress(label string) *progressStep {
	if !progressEnabled() {
		return nil
	}
	return startProgressTo(os.Stderr, label)
}

func startProgressTo(out io.Writer, label string) *progressStep {
	fmt.Fprintf(out, "%s... ", label)
	return &progressStep{
		out:     out,
		label:   label,
		started: time.Now(),
		enabled: true,
	}
}

func (p *progressStep) Done() {
	if p == nil || !p.enabled {
		return
	}
	fmt.Fprintf(p.out, "done (%s)\n", formatDuration(time.Since(p.started)))
}

func (p *progressStep) Fail(err error) {
	if p == nil || !p.enabled {
		return
	}
	if err != nil {
		fmt.Fprintf(p.out, "failed: %v\n", err)
		return
	}
	fmt.Fprintln(p.out, "failed")
}

// stepProgress prints one progress line per sequencer step.
type stepProgress struct {
	mu      sync.Mutex
	out     io.Writer
	total   int
	current *progressStep
}

func newStepProgress(out io.Writer) *stepProgress {
	return &stepProgress{out: out}
}

func (p *stepProgress) Emit(ctx context.Context, event *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Type {
	case models.EventTypeRunStarted:
		var payload models.RunStartedPayload
		if err := json.Unmarshal(event.Payload, &payload); err == nil {
			p.total = payload.Steps
		}
	case models.EventTypeStepStarted:
		var payload models.StepPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil
		}
		p.current = startProgressTo(p.out, fmt.Sprintf("[%d/%d] %s", payload.Index+1, p.total, payload.Label))
	case models.EventTypeStepPassed:
		p.current.Done()
		p.current = nil
	case models.EventTypeStepFailed:
		var payload models.StepPayload
		_ = json.Unmarshal(event.Payload, &payload)
		p.current.Fail(fmt.Errorf("%s", payload.Reason))
		p.current = nil
	}
	return nil
}

func progressEnabled() bool {
	if IsJSONOutput() || IsJSONLOutput() {
		return false
	}
	if noProgress {
		return false
	}
	if !stderrIsTerminal() {
		return false
	}
	if _, ok := os.LookupEnv("UIWALK_NO_PROGRESS"); ok {
		return false
	}
	if _, ok := os.LookupEnv("NO_PROGRESS"); ok {
		return false
	}
	return true
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	if d < time.Second {
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
