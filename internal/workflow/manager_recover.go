package workflow

import (
	"context"
	"fmt"

	"faceomatic/internal/jobs"
	"faceomatic/internal/logging"
)

// RecoverInterrupted returns jobs left Processing by a previous session to
// Unprocessed. A job qualifies when its newest run was still running or was
// waiting on a delayed retry. Stalled jobs are left for an operator.
func (m *Manager) RecoverInterrupted(ctx context.Context) ([]string, error) {
	runs, err := m.ledger.RecoverInterrupted(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover interrupted runs: %w", err)
	}
	var recovered []string
	for _, run := range runs {
		state, err := m.jobs.State(run.JobID)
		if err != nil || state != jobs.StateProcessing {
			continue
		}
		if err := m.jobs.RevertToUnprocessed(run.JobID); err != nil {
			m.logger.Warn("revert recovered job failed", logging.JobID(run.JobID), logging.Error(err))
			continue
		}
		if err := m.layout.Cleanup(run.JobID); err != nil {
			m.logger.Debug("recovered job cleanup failed", logging.JobID(run.JobID), logging.Error(err))
		}
		recovered = append(recovered, run.JobID)
	}
	if len(recovered) > 0 {
		m.logger.Info("recovered interrupted jobs",
			logging.Int("count", len(recovered)),
			logging.Any("job_ids", recovered),
			logging.String(logging.FieldEventType, "jobs_recovered"),
		)
	}
	return recovered, nil
}
