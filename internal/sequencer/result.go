package sequencer

import (
	"errors"
	"fmt"

	"github.com/opencode-ai/uiwalk/internal/poll"
)

// Outcome classifies a terminal result.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// Failure names the first step that could not be satisfied.
type Failure struct {
	StepIndex int
	StepLabel string
	Reason    string
	Err       error
}

// Result is the terminal value of a run.
type Result struct {
	Outcome        Outcome
	Payload        any
	Failure        *Failure
	StepsCompleted int
}

// Succeeded reports whether every step passed and the payload was built.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Err returns the underlying error for failed results.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure.Err
}

func failed(index int, label string, err error) Result {
	outcome := OutcomeFailure
	if errors.Is(err, poll.ErrCancelled) {
		outcome = OutcomeCancelled
	}
	return Result{
		Outcome: outcome,
		Failure: &Failure{
			StepIndex: index,
			StepLabel: label,
			Reason:    Reason(err),
			Err:       err,
		},
		StepsCompleted: index,
	}
}

// Reason renders err as the operator-facing failure reason.
func Reason(err error) string {
	var (
		mismatch *PreconditionMismatchError
		notFound *NotFoundError
		timeout  *poll.TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, poll.ErrCancelled):
		return err.Error()
	case errors.As(err, &mismatch):
		return mismatch.Error()
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.As(err, &timeout):
		return timeout.Error()
	default:
		return fmt.Sprintf("action failed: %v", err)
	}
}
