// Package runner executes a recipe against a UI environment and produces the
// result envelope returned by the CLI and the HTTP server.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/opencode-ai/uiwalk/internal/events"
	"github.com/opencode-ai/uiwalk/internal/logging"
	"github.com/opencode-ai/uiwalk/internal/metrics"
	"github.com/opencode-ai/uiwalk/internal/models"
	"github.com/opencode-ai/uiwalk/internal/poll"
	"github.com/opencode-ai/uiwalk/internal/recipes"
	"github.com/opencode-ai/uiwalk/internal/report"
	"github.com/opencode-ai/uiwalk/internal/sequencer"
	"github.com/opencode-ai/uiwalk/internal/uienv"
	"github.com/rs/zerolog"
)

// ErrUnsupportedRuntime is returned for recipes that do not drive a browser.
var ErrUnsupportedRuntime = errors.New("unsupported runtime")

// Error types reported in the envelope.
const (
	ErrorTypeTimeout      = "timeout"
	ErrorTypeNotFound     = "not_found"
	ErrorTypePrecondition = "precondition_mismatch"
	ErrorTypeCancelled    = "cancelled"
	ErrorTypeAction       = "action_failed"
)

// RunStore records run history.
type RunStore interface {
	Create(ctx context.Context, run *models.Run) error
	Finish(ctx context.Context, run *models.Run) error
}

// Request is one recipe invocation.
type Request struct {
	Recipe *recipes.Recipe
	Vars   map[string]string
	Env    uienv.Environment
}

// ErrorInfo describes why a run did not succeed.
type ErrorInfo struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	StepLabel string `json:"step_label,omitempty"`
}

// Outcome is the result envelope. Data holds a report.Report on success and a
// report.Failure otherwise.
type Outcome struct {
	RunID         string           `json:"run_id"`
	Success       bool             `json:"success"`
	Status        models.RunStatus `json:"status"`
	Data          any              `json:"data"`
	Error         *ErrorInfo       `json:"error,omitempty"`
	ExecutionTime float64          `json:"execution_time"`
	RecipeName    string           `json:"recipe_name"`
	Runtime       string           `json:"runtime"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// Runner executes recipes.
type Runner struct {
	clock    clockwork.Clock
	interval time.Duration
	sink     events.Sink
	store    RunStore
	logger   zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the clock shared by the poller and the sequencer.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithInterval sets the default sampling interval for gates that leave it unset.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.interval = d
	}
}

// WithSink sets the event sink.
func WithSink(sink events.Sink) Option {
	return func(r *Runner) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithStore enables run history.
func WithStore(store RunStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		clock:    clockwork.NewRealClock(),
		interval: poll.DefaultInterval,
		sink:     events.NoopSink{},
		logger:   logging.Component("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run renders the recipe, executes its steps and returns the envelope.
// The returned error covers problems found before any step runs; step
// failures and cancellation are reported in the Outcome.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Recipe == nil {
		return nil, fmt.Errorf("recipe is required")
	}
	if req.Env == nil {
		return nil, fmt.Errorf("environment is required")
	}
	if req.Recipe.Runtime != recipes.RuntimeChromeJS {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRuntime, req.Recipe.Runtime)
	}

	rendered, vars, err := recipes.Render(req.Recipe, req.Vars)
	if err != nil {
		return nil, err
	}

	c := &compiler{env: req.Env, vars: vars, interval: r.interval}
	steps, err := c.steps(rendered.Steps)
	if err != nil {
		return nil, fmt.Errorf("recipe %q: %w", rendered.Name, err)
	}

	runID := uuid.New().String()
	logger := r.logger.With().Str("run_id", runID).Str("recipe", rendered.Name).Logger()
	started := r.clock.Now()

	// History and events outlive the caller's cancellation.
	record := context.WithoutCancel(ctx)
	run := &models.Run{
		ID:         runID,
		Recipe:     rendered.Name,
		Runtime:    string(rendered.Runtime),
		Vars:       vars,
		StepsTotal: len(steps),
		StartedAt:  started.UTC(),
	}
	if r.store != nil {
		if err := r.store.Create(record, run); err != nil {
			logger.Warn().Err(err).Msg("failed to record run")
		}
	}

	obs := &observer{
		runID:  runID,
		sink:   r.sink,
		logger: logger,
		meta:   map[string]string{"recipe": rendered.Name},
	}
	obs.emit(record, models.EventTypeRunStarted, models.RunStartedPayload{
		Recipe: rendered.Name,
		Steps:  len(steps),
		Vars:   vars,
	})
	logger.Info().Int("steps", len(steps)).Msg("run started")

	done := metrics.RunStarted()
	poller := poll.New(
		poll.WithClock(r.clock),
		poll.WithLogger(logger.With().Str("component", "poll").Logger()),
		poll.WithObserver(func(o poll.Observation) { obs.waitFinished(record, o) }),
	)
	seq := sequencer.New(poller,
		sequencer.WithLogger(logger.With().Str("component", "sequencer").Logger()),
		sequencer.WithObserver(obs),
	)

	result := seq.Run(ctx, steps, func(ctx context.Context) (any, error) {
		url, err := req.Env.CurrentLocation(ctx)
		if err != nil {
			return nil, fmt.Errorf("read location: %w", err)
		}
		return report.Build(rendered.Report, url), nil
	})
	done()

	finished := r.clock.Now()
	out := envelope(runID, rendered, result, started, finished)

	run.Status = out.Status
	run.StepsCompleted = result.StepsCompleted
	if result.Failure != nil {
		run.FailedStep = result.Failure.StepLabel
		run.Reason = result.Failure.Reason
	}
	finishedAt := finished.UTC()
	run.FinishedAt = &finishedAt
	if payload, err := json.Marshal(out.Data); err == nil {
		run.Payload = payload
	}
	if r.store != nil {
		if err := r.store.Finish(record, run); err != nil {
			logger.Warn().Err(err).Msg("failed to record run result")
		}
	}

	obs.emit(record, events.RunFinishedType(out.Status), models.RunFinishedPayload{
		Outcome:        out.Status,
		StepsCompleted: result.StepsCompleted,
		StepLabel:      run.FailedStep,
		Reason:         run.Reason,
		DurationMS:     finished.Sub(started).Milliseconds(),
	})
	metrics.IncRunOutcome(string(out.Status))
	metrics.ObserveRunDuration(finished.Sub(started))

	event := logger.Info()
	if !out.Success {
		event = logger.Warn().Str("step", run.FailedStep).Str("reason", run.Reason)
	}
	event.Str("outcome", string(out.Status)).Dur("elapsed", finished.Sub(started)).Msg("run finished")

	return out, nil
}

func envelope(runID string, r *recipes.Recipe, result sequencer.Result, started, finished time.Time) *Outcome {
	out := &Outcome{
		RunID:         runID,
		Success:       result.Succeeded(),
		Status:        status(result.Outcome),
		ExecutionTime: finished.Sub(started).Seconds(),
		RecipeName:    r.Name,
		Runtime:       string(r.Runtime),
		StartedAt:     started.UTC(),
		FinishedAt:    finished.UTC(),
	}
	if result.Succeeded() {
		out.Data = result.Payload
		return out
	}

	failure := result.Failure
	out.Data = report.FailureReport(failure.StepLabel, failure.Reason)
	out.Error = &ErrorInfo{
		Type:      ErrorType(failure.Err),
		Message:   failure.Reason,
		StepLabel: failure.StepLabel,
	}
	return out
}

func status(outcome sequencer.Outcome) models.RunStatus {
	switch outcome {
	case sequencer.OutcomeSuccess:
		return models.RunStatusSuccess
	case sequencer.OutcomeCancelled:
		return models.RunStatusCancelled
	default:
		return models.RunStatusFailure
	}
}

// ErrorType classifies a step error for the envelope.
func ErrorType(err error) string {
	var mismatch *sequencer.PreconditionMismatchError
	switch {
	case errors.Is(err, poll.ErrCancelled):
		return ErrorTypeCancelled
	case errors.As(err, &mismatch):
		return ErrorTypePrecondition
	case errors.Is(err, sequencer.ErrTargetNotFound):
		return ErrorTypeNotFound
	case poll.IsTimeout(err):
		return ErrorTypeTimeout
	default:
		return ErrorTypeAction
	}
}
