package jobs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// MarkProcessing moves an Unprocessed job to Processing.
func (s *Store) MarkProcessing(id string) error {
	return s.transition(id, StateUnprocessed, StateProcessing)
}

// MarkProcessed moves a Processing job to the terminal Processed state.
func (s *Store) MarkProcessed(id string) error {
	return s.transition(id, StateProcessing, StateProcessed)
}

// RevertToUnprocessed moves a Processing job back to Unprocessed so the next
// dispatch retries it.
func (s *Store) RevertToUnprocessed(id string) error {
	return s.transition(id, StateProcessing, StateUnprocessed)
}

// MarkFailed moves a Processing job to the terminal Failed state.
func (s *Store) MarkFailed(id string) error {
	return s.transition(id, StateProcessing, StateFailed)
}

// Reset returns a stalled Processing job or a Failed job to Unprocessed. It is
// the operator recovery path and returns the state the job was in.
func (s *Store) Reset(id string) (State, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.stateLocked(id)
	if err != nil {
		return current, err
	}
	switch current {
	case StateProcessing, StateFailed:
		return current, s.renameLocked(id, current, StateUnprocessed)
	case StateUnprocessed:
		return current, nil
	default:
		return current, &StateError{ID: id, From: current, To: StateUnprocessed, Current: current}
	}
}

func (s *Store) transition(id string, from, to State) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if _, ok := allowed[transition{from, to}]; !ok {
		return &StateError{ID: id, From: from, To: to, Current: from}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renameLocked(id, from, to)
}

func (s *Store) renameLocked(id string, from, to State) error {
	err := renameNoReplace(s.markerPath(id, from), s.markerPath(id, to))
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrExist) {
		current, stateErr := s.stateLocked(id)
		if stateErr != nil {
			current = StateUnregistered
		}
		return &StateError{ID: id, From: from, To: to, Current: current}
	}
	return fmt.Errorf("move job %s from %s to %s: %w", id, from, to, err)
}

// renameChecked refuses to overwrite newPath, then renames. Used where the
// filesystem cannot do both in one step; the store mutex covers the gap for
// callers in this process.
func renameChecked(oldPath, newPath string) error {
	if _, err := os.Lstat(newPath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrExist}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(oldPath, newPath)
}
