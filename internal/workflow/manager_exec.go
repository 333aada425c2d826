package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"faceomatic/internal/ledger"
	"faceomatic/internal/logging"
	"faceomatic/internal/services"
	"faceomatic/internal/stage"
)

// execute drives a claimed job through every stage. The job is Processing on
// entry and has been moved to its next state on return.
func (m *Manager) execute(ctx context.Context, id string) error {
	requestID := uuid.NewString()
	ctx = services.WithJobID(ctx, id)
	ctx = services.WithRequestID(ctx, requestID)
	logger := logging.WithContext(ctx, m.logger)
	// Ledger writes and state moves after a failure must outlive cancellation.
	bookkeeping := context.WithoutCancel(ctx)

	job, _, err := m.jobs.Load(id)
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "load job failed", "job_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the job marker in programs_dir"),
		)
		if revertErr := m.jobs.RevertToUnprocessed(id); revertErr != nil {
			logger.Warn("revert after load failure failed", logging.Error(revertErr))
		}
		return err
	}

	run, err := m.ledger.BeginRun(bookkeeping, id, requestID)
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "record run start failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the ledger database with faceomatic status"),
		)
		if revertErr := m.jobs.RevertToUnprocessed(id); revertErr != nil {
			logger.Warn("revert after ledger failure failed", logging.Error(revertErr))
		}
		return fmt.Errorf("begin run for %s: %w", id, err)
	}

	logger.Info("job started",
		logging.Int("attempt", run.Attempt),
		logging.String("network", job.Network),
		logging.String("program", job.Program),
		logging.String(logging.FieldEventType, "job_started"),
	)
	started := time.Now()

	progress := func(p ledger.Progress) {
		if err := m.ledger.UpdateProgress(bookkeeping, run.ID, p); err != nil {
			logger.Debug("progress update failed", logging.Error(err))
		}
	}
	carrier := stage.NewRun(job, m.layout, progress)

	defer m.setActive(id, "")
	for _, handler := range m.stageList() {
		name := handler.Name()
		m.setActive(id, name)
		carrier.Progress(ledger.Progress{Stage: name})
		stageCtx := services.WithStage(ctx, name)
		stageStart := time.Now()
		logger.Debug("stage started", logging.String(logging.FieldStage, name), logging.String(logging.FieldEventType, "stage_started"))

		if err := handler.Execute(stageCtx, carrier); err != nil {
			return m.handleFailure(ctx, run, name, err)
		}
		logger.Info("stage completed",
			logging.String(logging.FieldStage, name),
			logging.Duration("duration", time.Since(stageStart)),
			logging.String(logging.FieldEventType, "stage_completed"),
		)
	}

	if err := m.jobs.MarkProcessed(id); err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "mark processed failed", "job_state_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "results were written; reset the job or remove its marker by hand"),
		)
		if finishErr := m.ledger.Finish(bookkeeping, run.ID, ledger.StatusStalled, err); finishErr != nil {
			logger.Warn("record stalled run failed", logging.Error(finishErr))
		}
		return err
	}
	if err := m.layout.Cleanup(id); err != nil {
		logging.WarnWithContext(logger, "video cleanup failed", "cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the downloaded broadcast stays on disk"),
			logging.String(logging.FieldErrorHint, "remove the file from videos_dir"),
		)
	}
	if err := m.ledger.Finish(bookkeeping, run.ID, ledger.StatusCompleted, nil); err != nil {
		logger.Warn("record completed run failed", logging.Error(err))
	}
	m.setLastDone(id)
	logger.Info("job processed",
		logging.Duration("duration", time.Since(started)),
		logging.Int("labels", len(carrier.Report.Labels)),
		logging.String(logging.FieldEventType, "job_processed"),
	)
	return nil
}
