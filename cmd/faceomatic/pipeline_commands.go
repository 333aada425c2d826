package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"faceomatic/internal/archive"
	"faceomatic/internal/discovery"
	"faceomatic/internal/workflow"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Fetch the broadcast listing and register new programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			store, err := ctx.jobStore()
			if err != nil {
				return err
			}
			registrar := discovery.NewRegistrar(cfg, archive.New(cfg, archive.WithLogger(logger)), store, logger)
			var summary discovery.Summary
			if dryRun {
				summary, err = registrar.Preview(cmd.Context())
			} else {
				summary, err = registrar.Run(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, summary)
			}
			out := cmd.OutOrStdout()
			verb := "Registered"
			if dryRun {
				verb = "Would register"
			}
			fmt.Fprintln(out, renderPairs([][2]string{
				{"Fetched", strconv.Itoa(summary.Fetched)},
				{"Malformed", strconv.Itoa(summary.Malformed)},
				{"Outside window", strconv.Itoa(summary.Stale)},
				{"Network not allowed", strconv.Itoa(summary.Disallowed)},
				{"Already known", strconv.Itoa(summary.Known)},
				{verb, strconv.Itoa(summary.Registered)},
			}))
			for _, id := range summary.IDs {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be registered without writing markers")
	return cmd
}

func newDispatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Start runs for waiting jobs (through the daemon when it is running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var summary workflow.DispatchSummary
			if client := newDaemonClient(cfg); client.reachable(cmd.Context()) {
				if err := client.do(cmd.Context(), "POST", "/api/dispatch", &summary); err != nil {
					return err
				}
			} else {
				pipeline, err := ctx.wiredPipeline()
				if err != nil {
					return err
				}
				summary, err = pipeline.Workflow.Dispatch(cmd.Context())
				if err != nil {
					return fmt.Errorf("dispatch: %w", err)
				}
				pipeline.Workflow.Wait()
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, summary)
			}
			out := cmd.OutOrStdout()
			if len(summary.Started) == 0 {
				fmt.Fprintln(out, "No jobs started")
			} else {
				fmt.Fprintf(out, "Started %d job(s): %s\n", len(summary.Started), strings.Join(summary.Started, ", "))
			}
			if summary.Deferred > 0 {
				fmt.Fprintf(out, "%d job(s) wait for a free slot\n", summary.Deferred)
			}
			return nil
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process ID",
		Short: "Run one unprocessed job through the pipeline in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := ctx.wiredPipeline()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := pipeline.Workflow.ProcessJob(cmd.Context(), id); err != nil {
				state, _ := pipeline.Jobs.State(id)
				return fmt.Errorf("process %s (now %s): %w", id, state, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %s\n", id)
			return nil
		},
	}
}
