package sequencer

import (
	"errors"
	"fmt"
)

// ErrTargetNotFound is matched by NotFoundError.
var ErrTargetNotFound = errors.New("target not found")

// NotFoundError reports a required UI target absent at action time.
type NotFoundError struct {
	Target string
}

func (e *NotFoundError) Error() string {
	if e.Target == "" {
		return ErrTargetNotFound.Error()
	}
	return fmt.Sprintf("%s: %s", ErrTargetNotFound, e.Target)
}

// Is lets errors.Is match ErrTargetNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrTargetNotFound
}

// NotFound builds a NotFoundError for the described target.
func NotFound(target string) error {
	return &NotFoundError{Target: target}
}

// PreconditionMismatchError reports a starting state that recovery could not fix.
type PreconditionMismatchError struct {
	Description string
	Cause       error
}

func (e *PreconditionMismatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("precondition not met: %s: %v", e.Description, e.Cause)
	}
	return fmt.Sprintf("precondition not met: %s", e.Description)
}

func (e *PreconditionMismatchError) Unwrap() error {
	return e.Cause
}
