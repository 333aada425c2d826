package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition marks a state change the job state machine forbids.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrNotRegistered reports that no marker exists for a job id.
	ErrNotRegistered = errors.New("job not registered")
	// ErrInconsistent reports more than one marker for the same id.
	ErrInconsistent = errors.New("job has multiple state markers")
	// ErrInvalidID rejects ids that cannot be used as marker file names.
	ErrInvalidID = errors.New("invalid job id")
)

// StateError describes a rejected transition.
type StateError struct {
	ID      string
	From    State
	To      State
	Current State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("job %s: cannot move %s -> %s (current state %s)", e.ID, e.From, e.To, e.Current)
}

// Is lets callers match StateError with errors.Is(err, ErrInvalidTransition).
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidTransition
}
