// Package sequencer runs an ordered list of UI steps, each gated by a bounded
// poll, and reports the first step that could not be satisfied.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/opencode-ai/uiwalk/internal/logging"
	"github.com/opencode-ai/uiwalk/internal/poll"
	"github.com/rs/zerolog"
)

// Gate is a readiness condition polled until it holds.
// A gate without a Check is skipped.
type Gate struct {
	Spec  poll.WaitSpec
	Check poll.Check
}

func (g Gate) enabled() bool {
	return g.Check != nil
}

// Precondition describes the state a step expects before it starts, and the
// one-shot recovery used when that state does not hold.
type Precondition struct {
	Description string
	Check       poll.Check

	// Recover moves the environment into the expected state. Nil means no recovery.
	Recover func(ctx context.Context) error

	// Ready is polled after Recover before the precondition is re-validated.
	Ready Gate
}

// Step is one ordered unit of work.
type Step struct {
	Label        string
	Precondition *Precondition

	// Ready gates the action on its target being present.
	Ready Gate

	// Action runs exactly once. Nil steps only wait.
	Action func(ctx context.Context) error

	// Settle is a fixed pause after the action.
	Settle time.Duration

	// After is an optional post-condition polled after the settle delay.
	After Gate
}

// Assembler builds the success payload once every step has passed.
type Assembler func(ctx context.Context) (any, error)

// Observer receives step lifecycle callbacks.
type Observer interface {
	StepStarted(ctx context.Context, index int, label string)
	StepFinished(ctx context.Context, index int, label string, elapsed time.Duration, err error)
}

// Sequencer executes steps strictly in order.
type Sequencer struct {
	poller   *poll.Poller
	clock    clockwork.Clock
	logger   zerolog.Logger
	observer Observer
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sequencer) {
		s.logger = logger
	}
}

// WithObserver registers step callbacks.
func WithObserver(observer Observer) Option {
	return func(s *Sequencer) {
		s.observer = observer
	}
}

// New creates a sequencer that waits through poller and shares its clock.
func New(poller *poll.Poller, opts ...Option) *Sequencer {
	if poller == nil {
		poller = poll.New()
	}
	s := &Sequencer{
		poller: poller,
		clock:  poller.Clock(),
		logger: logging.Component("sequencer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssembleLabel names the failure produced when the payload cannot be built.
const AssembleLabel = "assemble report"

// Run executes steps in order and returns the terminal result. The first
// unsatisfied step ends the run; later steps are never started.
func (s *Sequencer) Run(ctx context.Context, steps []Step, assemble Assembler) Result {
	for i, step := range steps {
		if step.Label == "" {
			return failed(i, fmt.Sprintf("step %d", i+1), fmt.Errorf("step label is required"))
		}
	}

	for i, step := range steps {
		started := s.clock.Now()
		s.logger.Debug().Int("index", i).Str("step", step.Label).Msg("step started")
		if s.observer != nil {
			s.observer.StepStarted(ctx, i, step.Label)
		}

		err := s.runStep(ctx, step)
		elapsed := s.clock.Since(started)
		if s.observer != nil {
			s.observer.StepFinished(ctx, i, step.Label, elapsed, err)
		}

		if err != nil {
			result := failed(i, step.Label, err)
			s.logger.Warn().
				Int("index", i).
				Str("step", step.Label).
				Str("outcome", string(result.Outcome)).
				Str("reason", result.Failure.Reason).
				Msg("step failed")
			return result
		}

		s.logger.Info().
			Int("index", i).
			Str("step", step.Label).
			Dur("elapsed", elapsed).
			Msg("step passed")
	}

	result := Result{
		Outcome:        OutcomeSuccess,
		StepsCompleted: len(steps),
	}
	if assemble != nil {
		payload, err := assemble(ctx)
		if err != nil {
			failure := failed(len(steps), AssembleLabel, err)
			failure.StepsCompleted = len(steps)
			return failure
		}
		result.Payload = payload
	}
	return result
}

func (s *Sequencer) runStep(ctx context.Context, step Step) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: before %s: %w", poll.ErrCancelled, step.Label, err)
	}

	if step.Precondition != nil {
		if err := s.ensure(ctx, step.Precondition); err != nil {
			return err
		}
	}

	if step.Ready.enabled() {
		if err := s.poller.Until(ctx, step.Ready.Spec, step.Ready.Check); err != nil {
			return err
		}
	}

	if step.Action != nil {
		if err := step.Action(ctx); err != nil {
			return err
		}
	}

	if step.Settle > 0 {
		if err := s.settle(ctx, step.Settle); err != nil {
			return err
		}
	}

	if step.After.enabled() {
		if err := s.poller.Until(ctx, step.After.Spec, step.After.Check); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) ensure(ctx context.Context, pc *Precondition) error {
	ok, err := pc.Check(ctx)
	if err == nil && ok {
		return nil
	}
	if pc.Recover == nil {
		return &PreconditionMismatchError{Description: pc.Description, Cause: err}
	}

	s.logger.Info().Str("precondition", pc.Description).Msg("precondition not met, recovering")
	if err := pc.Recover(ctx); err != nil {
		return &PreconditionMismatchError{Description: pc.Description, Cause: fmt.Errorf("recovery failed: %w", err)}
	}

	if pc.Ready.enabled() {
		if err := s.poller.Until(ctx, pc.Ready.Spec, pc.Ready.Check); err != nil {
			if errors.Is(err, poll.ErrCancelled) {
				return err
			}
			return &PreconditionMismatchError{Description: pc.Description, Cause: err}
		}
	}

	ok, err = pc.Check(ctx)
	if err != nil || !ok {
		return &PreconditionMismatchError{Description: pc.Description, Cause: err}
	}
	return nil
}

func (s *Sequencer) settle(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: settle delay: %w", poll.ErrCancelled, ctx.Err())
	case <-s.clock.After(d):
		return nil
	}
}
