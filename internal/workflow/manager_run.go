package workflow

import (
	"context"
	"errors"
	"time"

	"faceomatic/internal/logging"
)

// Start enables background runs. Runs started by Dispatch afterwards use a
// context derived from ctx, so Stop cancels them all.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	if m.cfg.Workflow.RecoverInterrupted {
		if _, err := m.RecoverInterrupted(ctx); err != nil {
			logging.WarnWithContext(m.logger, "interrupted run recovery failed", "recovery_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "jobs from the previous session may stay processing"),
				logging.String(logging.FieldErrorHint, "run faceomatic jobs list and reset stuck jobs"),
			)
		}
	}
	return nil
}

// Stop cancels in-flight runs, waits for them to unwind, and drops pending
// retry timers. Jobs whose retry was pending stay Processing with a
// retry_pending run and are recovered at the next start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	for id, timer := range m.retries {
		timer.Stop()
		delete(m.retries, id)
	}
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Wait blocks until every dispatched run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Running reports whether Start has been called without Stop.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) baseContext(fallback context.Context) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.running && m.runCtx != nil {
		return m.runCtx
	}
	return fallback
}

func (m *Manager) scheduleRevert(id string, delay time.Duration, revert func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.retries[id]; ok {
		old.Stop()
	}
	m.retries[id] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.retries, id)
		m.mu.Unlock()
		revert()
	})
}

// PendingRetries returns the ids waiting on a delayed revert.
func (m *Manager) PendingRetries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.retries))
	for id := range m.retries {
		ids = append(ids, id)
	}
	return ids
}
