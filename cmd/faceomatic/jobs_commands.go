package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and reset registered broadcasts",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsResetCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var stateFilter []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs and their states",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.jobStore()
			if err != nil {
				return err
			}
			wanted := make([]jobs.State, 0, len(stateFilter))
			for _, raw := range stateFilter {
				state, ok := jobs.ParseState(raw)
				if !ok {
					return fmt.Errorf("unknown state %q (want unprocessed, processing, processed, or failed)", raw)
				}
				wanted = append(wanted, state)
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			if len(wanted) > 0 {
				entries = slices.DeleteFunc(entries, func(e jobs.Entry) bool {
					return !slices.Contains(wanted, e.State)
				})
			}
			if ctx.jsonOutput() {
				if entries == nil {
					entries = []jobs.Entry{}
				}
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{entry.ID, displayLabel(string(entry.State)), relativeTime(entry.UpdatedAt)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Job", "State", "Updated"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&stateFilter, "state", "s", nil, "Only list jobs in these states")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a job and its run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.jobStore()
			if err != nil {
				return err
			}
			runs, err := ctx.runLedger()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			job, state, err := store.Load(id)
			if err != nil {
				return err
			}
			history, err := runs.List(cmd.Context(), ledger.Filter{JobID: id, Limit: 20})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"job": job, "state": state, "runs": history})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderPairs([][2]string{
				{"Job", job.ID},
				{"State", displayLabel(string(state))},
				{"Network", job.Network},
				{"Program", job.Program},
				{"Aired", job.Airtime.UTC().Format("2006-01-02 15:04 MST")},
				{"Registered", relativeTime(job.RegisteredAt)},
			}))
			if len(history) > 0 {
				fmt.Fprintln(out, renderRuns(history))
			}
			return nil
		},
	}
}

func newJobsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset ID...",
		Short: "Return stalled or failed jobs to unprocessed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.jobStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var failed int
			for _, id := range args {
				previous, err := store.Reset(strings.TrimSpace(id))
				switch {
				case err != nil:
					failed++
					fmt.Fprintf(out, "%s: %v\n", id, err)
				case previous == jobs.StateUnprocessed:
					fmt.Fprintf(out, "%s: already unprocessed\n", id)
				default:
					fmt.Fprintf(out, "%s: %s -> unprocessed\n", id, previous)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d job(s) not reset", failed, len(args))
			}
			return nil
		},
	}
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var jobFilter string
	var statusFilter []string
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List pipeline runs from the ledger, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := ctx.runLedger()
			if err != nil {
				return err
			}
			filter := ledger.Filter{JobID: strings.TrimSpace(jobFilter), Limit: limit}
			for _, raw := range statusFilter {
				status := ledger.Status(strings.ToLower(strings.TrimSpace(raw)))
				if !slices.Contains(ledger.AllStatuses(), status) {
					return fmt.Errorf("unknown run status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			history, err := runs.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if history == nil {
					history = []*ledger.Run{}
				}
				return writeJSON(cmd, history)
			}
			if len(history) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRuns(history))
			return nil
		},
	}
	cmd.Flags().StringVar(&jobFilter, "job", "", "Only show runs for this job")
	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Only show runs with these statuses")
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum number of runs (0 for all)")
	return cmd
}

func renderRuns(history []*ledger.Run) string {
	rows := make([][]string, 0, len(history))
	for _, run := range history {
		detail := run.Message
		if run.ErrorMessage != "" {
			detail = run.ErrorMessage
		}
		segments := "-"
		if run.Segments > 0 {
			segments = fmt.Sprintf("%d/%d", run.SegmentsDone, run.Segments)
		}
		rows = append(rows, []string{
			strconv.FormatInt(run.ID, 10),
			run.JobID,
			strconv.Itoa(run.Attempt),
			displayLabel(string(run.Status)),
			displayLabel(run.Stage),
			segments,
			formatBytes(run.BytesDownloaded),
			relativeTime(run.StartedAt),
			truncate(detail, 60),
		})
	}
	return renderTable(
		[]string{"Run", "Job", "Attempt", "Status", "Stage", "Segments", "Downloaded", "Started", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight},
	)
}
