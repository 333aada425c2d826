package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
	"faceomatic/internal/logging"
	"faceomatic/internal/services"
)

// handleFailure moves the job to the state its stage error maps to and closes
// the run in the ledger. It returns the stage error.
func (m *Manager) handleFailure(ctx context.Context, run *ledger.Run, stageName string, cause error) error {
	id := run.JobID
	m.setLastError(cause)
	bookkeeping := context.WithoutCancel(ctx)
	logger := logging.WithContext(services.WithStage(ctx, stageName), m.logger)

	finish := func(status ledger.Status) {
		if err := m.ledger.Finish(bookkeeping, run.ID, status, cause); err != nil {
			logger.Warn("record run outcome failed", logging.String("status", string(status)), logging.Error(err))
		}
	}
	cleanup := func() {
		if err := m.layout.Cleanup(id); err != nil {
			logger.Debug("artifact cleanup failed", logging.Error(err))
		}
	}

	// Shutdown: hand the job straight back so the next start picks it up.
	if ctx.Err() != nil || errors.Is(cause, context.Canceled) {
		finish(ledger.StatusInterrupted)
		cleanup()
		if err := m.jobs.RevertToUnprocessed(id); err != nil {
			logger.Warn("revert interrupted job failed", logging.Error(err))
		}
		logger.Info("job interrupted", logging.String(logging.FieldEventType, "job_interrupted"))
		return cause
	}

	switch services.FailureState(cause) {
	case jobs.StateUnprocessed:
		if m.retriesExhausted(bookkeeping, id) {
			break
		}
		finish(ledger.StatusRetryPending)
		cleanup()
		// One-shot callers (CLI dispatch/process) exit before any timer
		// fires; the retry_pending run is picked up by recovery instead.
		if !m.Running() {
			logging.WarnWithContext(logger, "stage failed; job left for recovery", "retry_deferred",
				logging.Error(cause),
				logging.String(logging.FieldImpact, "job stays processing until the daemon next starts"),
				logging.String(logging.FieldErrorHint, fmt.Sprintf("start the daemon or run faceomatic jobs reset %s", id)),
			)
			return cause
		}
		delay := m.currentRetryDelay()
		logging.WarnWithContext(logger, "stage failed; retry scheduled", "retry_scheduled",
			logging.Error(cause),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldImpact, "job will be retried"),
			logging.String(logging.FieldErrorHint, "check archive and classifier reachability"),
		)
		m.scheduleRevert(id, delay, func() {
			if err := m.jobs.RevertToUnprocessed(id); err != nil {
				logger.Warn("delayed revert failed", logging.Error(err))
				return
			}
			logger.Info("job returned for retry", logging.String(logging.FieldEventType, "retry_released"))
		})
		return cause

	case jobs.StateProcessing:
		finish(ledger.StatusStalled)
		logging.ErrorWithContext(logger, "stage failed; job stalled", "job_stalled",
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, fmt.Sprintf("fix the tool problem, then run faceomatic jobs reset %s", id)),
		)
		return cause
	}

	finish(ledger.StatusFailed)
	cleanup()
	if err := m.jobs.MarkFailed(id); err != nil {
		logger.Warn("mark failed failed", logging.Error(err))
	}
	logging.ErrorWithContext(logger, "stage failed; job failed", "job_failed",
		logging.Error(cause),
		logging.Alert("job_failed"),
		logging.String(logging.FieldErrorHint, fmt.Sprintf("inspect faceomatic runs --job %s, then reset to retry", id)),
	)
	return cause
}

// retriesExhausted reports whether the attempt that just failed was the last
// one download_max_attempts allows.
func (m *Manager) retriesExhausted(ctx context.Context, id string) bool {
	limit := m.cfg.Workflow.DownloadMaxAttempts
	if limit <= 0 {
		return false
	}
	previous, err := m.ledger.CountRuns(ctx, id, ledger.StatusRetryPending)
	if err != nil {
		m.logger.Warn("count retries failed", logging.JobID(id), logging.Error(err))
		return false
	}
	return previous+1 >= limit
}

func (m *Manager) currentRetryDelay() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retryDelay
}
