package main

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"faceomatic/internal/daemon"
	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
	"faceomatic/internal/preflight"
)

// localStatus is shown when no daemon answers on the API address.
type localStatus struct {
	Running   bool               `json:"running"`
	Jobs      map[jobs.State]int `json:"jobs"`
	Runs      ledger.Stats       `json:"runs"`
	Ledger    ledger.Health      `json:"ledger"`
	Preflight []preflight.Result `json:"preflight"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, job, and run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client := newDaemonClient(cfg)
			if client.reachable(cmd.Context()) {
				var status daemon.Status
				if err := client.do(cmd.Context(), http.MethodGet, "/api/status", &status); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				printDaemonStatus(newStatusPrinter(cmd.OutOrStdout()), status)
				return nil
			}

			status, err := collectLocalStatus(cmd, ctx)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			printLocalStatus(newStatusPrinter(cmd.OutOrStdout()), status)
			return nil
		},
	}
}

func collectLocalStatus(cmd *cobra.Command, ctx *commandContext) (localStatus, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return localStatus{}, err
	}
	store, err := ctx.jobStore()
	if err != nil {
		return localStatus{}, err
	}
	counts, err := store.Counts()
	if err != nil {
		return localStatus{}, err
	}
	runs, err := ctx.runLedger()
	if err != nil {
		return localStatus{}, err
	}
	stats, err := runs.Stats(cmd.Context())
	if err != nil {
		return localStatus{}, err
	}
	registry, err := ctx.registry()
	if err != nil {
		return localStatus{}, err
	}
	return localStatus{
		Jobs:      counts,
		Runs:      stats,
		Ledger:    runs.CheckHealth(cmd.Context()),
		Preflight: preflight.RunLocal(cmd.Context(), cfg, registry),
	}, nil
}

func printDaemonStatus(p *statusPrinter, status daemon.Status) {
	p.section("Daemon")
	p.line("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID))
	if status.StartedAt != nil {
		p.line("Started", statusInfo, relativeTime(*status.StartedAt))
	}
	if status.APIAddress != "" {
		p.line("API", statusInfo, status.APIAddress)
	}
	if status.LogPath != "" {
		p.line("Log", statusInfo, status.LogPath)
	}
	for _, name := range slices.Sorted(maps.Keys(status.NextRuns)) {
		p.line("Next "+name, statusInfo, relativeTime(status.NextRuns[name]))
	}

	wf := status.Workflow
	p.blank()
	p.section("Workflow")
	if len(wf.Active) == 0 {
		p.line("Active", statusInfo, "idle")
	}
	for _, id := range slices.Sorted(maps.Keys(wf.Active)) {
		p.line("Active", statusInfo, fmt.Sprintf("%s (%s)", id, wf.Active[id]))
	}
	if len(wf.PendingRetries) > 0 {
		p.line("Pending retries", statusWarn, strings.Join(wf.PendingRetries, ", "))
	}
	if wf.LastProcessed != "" {
		p.line("Last processed", statusOK, wf.LastProcessed)
	}
	if wf.LastError != "" {
		p.line("Last error", statusError, wf.LastError)
	}
	for _, h := range wf.Stages {
		kind := statusOK
		if !h.Ready {
			kind = statusWarn
		}
		p.line(displayLabel(h.Name), kind, h.Detail)
	}

	p.blank()
	printCounts(p, wf.Jobs, wf.Runs, wf.Ledger)

	if len(status.Dependencies) > 0 {
		p.blank()
		p.section("Dependencies")
		for _, dep := range status.Dependencies {
			kind, detail := statusOK, dep.Version
			if !dep.Available {
				kind, detail = statusError, dep.Detail
				if dep.Optional {
					kind = statusWarn
				}
			}
			p.line(dep.Name, kind, detail)
		}
	}
}

func printLocalStatus(p *statusPrinter, status localStatus) {
	p.section("Daemon")
	p.line("Daemon", statusWarn, "not reachable")
	p.blank()
	printCounts(p, status.Jobs, status.Runs, status.Ledger)
	p.blank()
	p.section("Preflight")
	for _, result := range status.Preflight {
		p.line(result.Name, okOrError(result.Passed), result.Detail)
	}
}

func printCounts(p *statusPrinter, counts map[jobs.State]int, stats ledger.Stats, health ledger.Health) {
	p.section("Jobs")
	for _, state := range jobs.AllStates() {
		kind := statusInfo
		if state == jobs.StateFailed && counts[state] > 0 {
			kind = statusWarn
		}
		p.line(displayLabel(string(state)), kind, fmt.Sprintf("%d", counts[state]))
	}

	p.blank()
	p.section("Runs")
	p.line("Total", statusInfo, fmt.Sprintf("%d", stats.Total))
	for _, s := range ledger.AllStatuses() {
		if n := stats.ByStatus[s]; n > 0 {
			p.line(displayLabel(string(s)), statusInfo, fmt.Sprintf("%d", n))
		}
	}
	if stats.LastRun != nil {
		p.line("Last run", statusInfo, relativeTime(*stats.LastRun))
	}
	if health.Error != "" {
		p.line("Ledger", statusError, health.Error)
	} else {
		p.line("Ledger", okOrError(health.Integrity), fmt.Sprintf("schema v%d, %s", health.SchemaVersion, health.Path))
	}
}
