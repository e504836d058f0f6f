// Package poll provides the bounded wait-for-condition primitive used by the sequencer.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/opencode-ai/uiwalk/internal/logging"
	"github.com/rs/zerolog"
)

// DefaultInterval is the sampling interval used when a WaitSpec leaves it unset.
const DefaultInterval = 100 * time.Millisecond

// ErrCancelled is matched by errors returned when the context ends mid-wait.
var ErrCancelled = errors.New("wait cancelled")

// WaitSpec describes a single bounded wait.
type WaitSpec struct {
	// Description is the human-readable name used in failure messages.
	Description string

	// Condition is the selector or expression text being waited on.
	Condition string

	// Timeout bounds the wait. Zero or negative fails without sampling.
	Timeout time.Duration

	// Interval is the time between samples. Default: DefaultInterval.
	Interval time.Duration
}

func (s WaitSpec) interval() time.Duration {
	if s.Interval <= 0 {
		return DefaultInterval
	}
	return s.Interval
}

// TimeoutError reports a condition that never held within its deadline.
type TimeoutError struct {
	Description string
	Condition   string
	Timeout     time.Duration
	Elapsed     time.Duration
	Samples     int

	// LastErr is the most recent probe error, kept for diagnostics only.
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.Condition != "" {
		return fmt.Sprintf("timeout after %s waiting for %s (%s)", e.Timeout, e.Description, e.Condition)
	}
	return fmt.Sprintf("timeout after %s waiting for %s", e.Timeout, e.Description)
}

// Probe samples the environment once. found reports whether the condition holds.
type Probe[T any] func(ctx context.Context) (value T, found bool, err error)

// Check is a boolean probe.
type Check func(ctx context.Context) (bool, error)

// Observation summarizes a finished wait.
type Observation struct {
	Spec    WaitSpec
	Samples int
	Elapsed time.Duration
	Err     error
}

// Observer receives one Observation per wait.
type Observer func(Observation)

// Poller samples probes against a clock.
type Poller struct {
	clock    clockwork.Clock
	logger   zerolog.Logger
	observer Observer
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock, typically a clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithObserver registers a callback invoked after every wait.
func WithObserver(observer Observer) Option {
	return func(p *Poller) {
		p.observer = observer
	}
}

// New creates a Poller backed by the real clock unless overridden.
func New(opts ...Option) *Poller {
	p := &Poller{
		clock:  clockwork.NewRealClock(),
		logger: logging.Component("poll"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Clock returns the poller's clock.
func (p *Poller) Clock() clockwork.Clock {
	return p.clock
}

// Until waits for check to report true.
func (p *Poller) Until(ctx context.Context, spec WaitSpec, check Check) error {
	_, err := Await(ctx, p, spec, func(ctx context.Context) (struct{}, bool, error) {
		ok, err := check(ctx)
		return struct{}{}, ok, err
	})
	return err
}

// Await samples probe until it reports found, the timeout elapses, or ctx ends.
// A found sample returns immediately. Probe errors and panics count as not found.
func Await[T any](ctx context.Context, p *Poller, spec WaitSpec, probe Probe[T]) (T, error) {
	var zero T

	if spec.Timeout <= 0 {
		err := &TimeoutError{
			Description: spec.Description,
			Condition:   spec.Condition,
			Timeout:     spec.Timeout,
		}
		p.observe(spec, 0, 0, err)
		return zero, err
	}

	interval := spec.interval()
	start := p.clock.Now()
	samples := 0
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return zero, p.cancelled(spec, samples, p.clock.Since(start), err)
		}

		samples++
		value, found, err := sample(ctx, probe)
		if err != nil {
			lastErr = err
			p.logger.Trace().
				Err(err).
				Str("description", spec.Description).
				Int("sample", samples).
				Msg("probe not ready")
		}
		if found && err == nil {
			elapsed := p.clock.Since(start)
			p.logger.Debug().
				Str("description", spec.Description).
				Int("samples", samples).
				Dur("elapsed", elapsed).
				Msg("condition satisfied")
			p.observe(spec, samples, elapsed, nil)
			return value, nil
		}

		elapsed := p.clock.Since(start)
		if elapsed >= spec.Timeout {
			timeoutErr := &TimeoutError{
				Description: spec.Description,
				Condition:   spec.Condition,
				Timeout:     spec.Timeout,
				Elapsed:     elapsed,
				Samples:     samples,
				LastErr:     lastErr,
			}
			p.logger.Debug().
				Str("description", spec.Description).
				Int("samples", samples).
				Dur("elapsed", elapsed).
				AnErr("last_error", lastErr).
				Msg("condition timed out")
			p.observe(spec, samples, elapsed, timeoutErr)
			return zero, timeoutErr
		}

		wait := interval
		if remaining := spec.Timeout - elapsed; remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return zero, p.cancelled(spec, samples, p.clock.Since(start), ctx.Err())
		case <-p.clock.After(wait):
		}
	}
}

func sample[T any](ctx context.Context, probe Probe[T]) (value T, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			found = false
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return probe(ctx)
}

func (p *Poller) cancelled(spec WaitSpec, samples int, elapsed time.Duration, cause error) error {
	err := fmt.Errorf("%w: %s: %w", ErrCancelled, spec.Description, cause)
	p.observe(spec, samples, elapsed, err)
	return err
}

func (p *Poller) observe(spec WaitSpec, samples int, elapsed time.Duration, err error) {
	if p.observer == nil {
		return
	}
	p.observer(Observation{
		Spec:    spec,
		Samples: samples,
		Elapsed: elapsed,
		Err:     err,
	})
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}
