package workflow

import (
	"context"
	"errors"
	"fmt"

	"faceomatic/internal/jobs"
	"faceomatic/internal/logging"
)

// Dispatch claims Unprocessed jobs and starts one background run per claimed
// job. Claims stop when every run slot is busy; the remaining jobs are counted
// as deferred and picked up by a later call.
func (m *Manager) Dispatch(ctx context.Context) (DispatchSummary, error) {
	summary := DispatchSummary{Started: []string{}}
	if len(m.stageList()) == 0 {
		return summary, errors.New("workflow stages not configured")
	}
	base := m.baseContext(ctx)

	for id, err := range m.jobs.ListUnprocessed() {
		if err != nil {
			return summary, fmt.Errorf("list unprocessed jobs: %w", err)
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if !m.slots.TryAcquire(1) {
			summary.Deferred++
			continue
		}
		claimed, err := m.claim(id)
		if err != nil || !claimed {
			m.slots.Release(1)
			if err != nil {
				return summary, err
			}
			continue
		}
		summary.Started = append(summary.Started, id)
		m.wg.Add(1)
		go func(id string) {
			defer m.wg.Done()
			defer m.slots.Release(1)
			_ = m.execute(base, id)
		}(id)
	}

	if len(summary.Started) > 0 || summary.Deferred > 0 {
		m.logger.Info("dispatch tick",
			logging.Int("started", len(summary.Started)),
			logging.Int("deferred", summary.Deferred),
			logging.String(logging.FieldEventType, "dispatch_tick"),
		)
	}
	return summary, nil
}

// ProcessJob claims one Unprocessed job and runs it to completion in the
// calling goroutine. The returned error is the stage failure, if any; the
// job has already been moved to the state that failure maps to.
func (m *Manager) ProcessJob(ctx context.Context, id string) error {
	if len(m.stageList()) == 0 {
		return errors.New("workflow stages not configured")
	}
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.slots.Release(1)

	claimed, err := m.claim(id)
	if err != nil {
		return err
	}
	if !claimed {
		state, _ := m.jobs.State(id)
		return &jobs.StateError{ID: id, From: jobs.StateUnprocessed, To: jobs.StateProcessing, Current: state}
	}
	return m.execute(ctx, id)
}

// claim moves id to Processing. Losing the race to another dispatcher is
// reported as not claimed rather than an error.
func (m *Manager) claim(id string) (bool, error) {
	if err := m.jobs.MarkProcessing(id); err != nil {
		if errors.Is(err, jobs.ErrInvalidTransition) {
			m.logger.Debug("job already claimed", logging.JobID(id), logging.Error(err))
			return false, nil
		}
		return false, fmt.Errorf("claim job %s: %w", id, err)
	}
	return true, nil
}
