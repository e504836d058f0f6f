package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	value   string
	err     error
	elapsed time.Duration
}

// drive advances the fake clock each time the poller parks on it, until the
// wait under test returns.
func drive(t *testing.T, clock *clockwork.FakeClock, done <-chan outcome) outcome {
	t.Helper()
	for i := 0; i < 10000; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		blocked := make(chan error, 1)
		go func() { blocked <- clock.BlockUntilContext(ctx, 1) }()

		select {
		case out := <-done:
			cancel()
			return out
		case err := <-blocked:
			cancel()
			if err != nil {
				select {
				case out := <-done:
					return out
				default:
					t.Fatalf("poller stalled: %v", err)
				}
			}
			clock.Advance(10 * time.Millisecond)
		}
	}
	t.Fatal("poller never finished")
	return outcome{}
}

func startAwait(p *Poller, clock *clockwork.FakeClock, spec WaitSpec, probe Probe[string]) <-chan outcome {
	done := make(chan outcome, 1)
	start := clock.Now()
	go func() {
		v, err := Await(context.Background(), p, spec, probe)
		done <- outcome{value: v, err: err, elapsed: clock.Since(start)}
	}()
	return done
}

func TestAwaitReturnsWithinOneIntervalOfCondition(t *testing.T) {
	tests := []struct {
		name     string
		becomes  time.Duration
		interval time.Duration
		timeout  time.Duration
	}{
		{"immediately", 0, 100 * time.Millisecond, time.Second},
		{"mid interval", 250 * time.Millisecond, 100 * time.Millisecond, time.Second},
		{"on a tick", 300 * time.Millisecond, 100 * time.Millisecond, time.Second},
		{"just before timeout", 940 * time.Millisecond, 100 * time.Millisecond, time.Second},
		{"custom interval", 75 * time.Millisecond, 50 * time.Millisecond, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			p := New(WithClock(clock), WithLogger(zerolog.Nop()))
			start := clock.Now()

			probe := func(ctx context.Context) (string, bool, error) {
				if clock.Since(start) >= tt.becomes {
					return "tab", true, nil
				}
				return "", false, nil
			}

			out := drive(t, clock, startAwait(p, clock, WaitSpec{
				Description: "Epic tab",
				Timeout:     tt.timeout,
				Interval:    tt.interval,
			}, probe))

			require.NoError(t, out.err)
			require.Equal(t, "tab", out.value)
			require.GreaterOrEqual(t, out.elapsed, tt.becomes)
			require.Less(t, out.elapsed, tt.becomes+tt.interval)
		})
	}
}

func TestAwaitTimesOutWithinOneIntervalOfDeadline(t *testing.T) {
	timeouts := []time.Duration{
		100 * time.Millisecond,
		250 * time.Millisecond,
		time.Second,
		1050 * time.Millisecond,
	}

	for _, timeout := range timeouts {
		t.Run(timeout.String(), func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			p := New(WithClock(clock), WithLogger(zerolog.Nop()))

			probe := func(ctx context.Context) (string, bool, error) {
				return "", false, nil
			}

			out := drive(t, clock, startAwait(p, clock, WaitSpec{
				Description: "create dialog",
				Condition:   `[role="dialog"]`,
				Timeout:     timeout,
			}, probe))

			var timeoutErr *TimeoutError
			require.ErrorAs(t, out.err, &timeoutErr)
			require.GreaterOrEqual(t, out.elapsed, timeout)
			require.Less(t, out.elapsed, timeout+DefaultInterval)
			require.Equal(t, "create dialog", timeoutErr.Description)
			require.Contains(t, out.err.Error(), "timeout")
			require.Contains(t, out.err.Error(), `[role="dialog"]`)
		})
	}
}

func TestAwaitNonPositiveTimeoutTakesNoSamples(t *testing.T) {
	for _, timeout := range []time.Duration{0, -time.Second} {
		var calls atomic.Int32
		var observed Observation
		p := New(
			WithClock(clockwork.NewFakeClock()),
			WithLogger(zerolog.Nop()),
			WithObserver(func(o Observation) { observed = o }),
		)

		_, err := Await(context.Background(), p, WaitSpec{Description: "anything", Timeout: timeout},
			func(ctx context.Context) (int, bool, error) {
				calls.Add(1)
				return 1, true, nil
			})

		require.True(t, IsTimeout(err))
		require.Zero(t, calls.Load())
		require.Zero(t, observed.Samples)
	}
}

func TestAwaitTreatsProbeErrorsAsNotReady(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := New(WithClock(clock), WithLogger(zerolog.Nop()))
	start := clock.Now()
	transient := errors.New("node detached")

	probe := func(ctx context.Context) (string, bool, error) {
		if clock.Since(start) < 200*time.Millisecond {
			return "", false, transient
		}
		return "ready", true, nil
	}

	out := drive(t, clock, startAwait(p, clock, WaitSpec{Description: "card", Timeout: time.Second}, probe))
	require.NoError(t, out.err)
	require.Equal(t, "ready", out.value)
}

func TestAwaitSurfacesTimeoutNotProbeError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := New(WithClock(clock), WithLogger(zerolog.Nop()))
	transient := errors.New("cannot read property of null")
	panicked := false

	probe := func(ctx context.Context) (string, bool, error) {
		if !panicked {
			panicked = true
			panic("boom")
		}
		return "", false, transient
	}

	out := drive(t, clock, startAwait(p, clock, WaitSpec{Description: "button", Timeout: 300 * time.Millisecond}, probe))

	var timeoutErr *TimeoutError
	require.ErrorAs(t, out.err, &timeoutErr)
	require.NotErrorIs(t, out.err, transient)
	require.ErrorIs(t, timeoutErr.LastErr, transient)
	require.Greater(t, timeoutErr.Samples, 1)
}

func TestAwaitCancelledIsDistinctFromTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := New(WithClock(clock), WithLogger(zerolog.Nop()))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Until(ctx, WaitSpec{Description: "dialog", Timeout: time.Hour}, func(ctx context.Context) (bool, error) {
			return false, nil
		})
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrCancelled)
		require.ErrorIs(t, err, context.Canceled)
		require.False(t, IsTimeout(err))
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestAwaitAlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	p := New(WithClock(clockwork.NewFakeClock()), WithLogger(zerolog.Nop()))
	err := p.Until(ctx, WaitSpec{Description: "card", Timeout: time.Second}, func(ctx context.Context) (bool, error) {
		calls++
		return true, nil
	})

	require.ErrorIs(t, err, ErrCancelled)
	require.Zero(t, calls)
}

func TestObserverReceivesSampleCount(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var observed Observation
	p := New(WithClock(clock), WithLogger(zerolog.Nop()), WithObserver(func(o Observation) { observed = o }))
	start := clock.Now()

	probe := func(ctx context.Context) (string, bool, error) {
		return "x", clock.Since(start) >= 200*time.Millisecond, nil
	}

	out := drive(t, clock, startAwait(p, clock, WaitSpec{Description: "tab", Timeout: time.Second}, probe))
	require.NoError(t, out.err)
	require.Equal(t, 3, observed.Samples)
	require.NoError(t, observed.Err)
	require.Equal(t, "tab", observed.Spec.Description)
}
