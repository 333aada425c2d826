package workflow

import (
	"context"
	"maps"
	"slices"

	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
	"faceomatic/internal/stage"
)

// StatusSummary exposes the manager's internal state for the API and CLI.
type StatusSummary struct {
	Running        bool               `json:"running"`
	Active         map[string]string  `json:"active"`
	PendingRetries []string           `json:"pending_retries"`
	LastError      string             `json:"last_error,omitempty"`
	LastProcessed  string             `json:"last_processed,omitempty"`
	Jobs           map[jobs.State]int `json:"jobs"`
	Runs           ledger.Stats       `json:"runs"`
	Ledger         ledger.Health      `json:"ledger"`
	Stages         []stage.Health     `json:"stages"`
}

// Status returns a snapshot of the manager, the job store, and stage health.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:       m.running,
		Active:        maps.Clone(m.active),
		LastProcessed: m.lastDone,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	summary.PendingRetries = m.PendingRetries()
	slices.Sort(summary.PendingRetries)

	if counts, err := m.jobs.Counts(); err == nil {
		summary.Jobs = counts
	} else {
		summary.Jobs = map[jobs.State]int{}
	}
	if stats, err := m.ledger.Stats(ctx); err == nil {
		summary.Runs = stats
	}
	summary.Ledger = m.ledger.CheckHealth(ctx)

	for _, handler := range m.stageList() {
		summary.Stages = append(summary.Stages, handler.HealthCheck(ctx))
	}
	return summary
}
