package runner

import (
	"context"
	"errors"
	"time"

	"github.com/opencode-ai/uiwalk/internal/events"
	"github.com/opencode-ai/uiwalk/internal/metrics"
	"github.com/opencode-ai/uiwalk/internal/models"
	"github.com/opencode-ai/uiwalk/internal/poll"
	"github.com/opencode-ai/uiwalk/internal/sequencer"
	"github.com/rs/zerolog"
)

// observer turns sequencer and poller callbacks into events, metrics and logs.
type observer struct {
	runID  string
	sink   events.Sink
	logger zerolog.Logger
	meta   map[string]string
}

var _ sequencer.Observer = (*observer)(nil)

func (o *observer) emit(ctx context.Context, eventType models.EventType, payload any) {
	if err := events.Emit(ctx, o.sink, eventType, o.runID, payload, o.meta); err != nil {
		o.logger.Warn().Err(err).Str("event", string(eventType)).Msg("failed to emit event")
	}
}

func (o *observer) StepStarted(ctx context.Context, index int, label string) {
	o.emit(context.WithoutCancel(ctx), models.EventTypeStepStarted, models.StepPayload{
		Index: index,
		Label: label,
	})
}

func (o *observer) StepFinished(ctx context.Context, index int, label string, elapsed time.Duration, err error) {
	payload := models.StepPayload{
		Index:     index,
		Label:     label,
		ElapsedMS: elapsed.Milliseconds(),
	}

	eventType := models.EventTypeStepPassed
	outcome := string(sequencer.OutcomeSuccess)
	if err != nil {
		eventType = models.EventTypeStepFailed
		payload.Reason = sequencer.Reason(err)
		outcome = string(sequencer.OutcomeFailure)
		if errors.Is(err, poll.ErrCancelled) {
			outcome = string(sequencer.OutcomeCancelled)
		}
	}

	o.emit(context.WithoutCancel(ctx), eventType, payload)
	metrics.IncStepOutcome(outcome)
	metrics.ObserveStepDuration(elapsed)
}

func (o *observer) waitFinished(ctx context.Context, obs poll.Observation) {
	result := waitResult(obs.Err)
	metrics.ObserveWait(result, obs.Elapsed, obs.Samples)
	o.emit(ctx, models.EventTypeWaitFinished, models.WaitPayload{
		Description: obs.Spec.Description,
		Condition:   obs.Spec.Condition,
		Samples:     obs.Samples,
		ElapsedMS:   obs.Elapsed.Milliseconds(),
		Result:      result,
	})
}

func waitResult(err error) string {
	switch {
	case err == nil:
		return "satisfied"
	case errors.Is(err, poll.ErrCancelled):
		return "cancelled"
	default:
		return "timeout"
	}
}
