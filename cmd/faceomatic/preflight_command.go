package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"faceomatic/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, credentials, binaries, and classifier access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := ctx.registry()
			if err != nil {
				return err
			}
			var results []preflight.Result
			if offline {
				results = preflight.RunLocal(cmd.Context(), cfg, registry)
			} else {
				results = preflight.RunAll(cmd.Context(), cfg, registry)
			}
			failed := preflight.Failed(results)

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				p := newStatusPrinter(cmd.OutOrStdout())
				p.section("Preflight")
				for _, result := range results {
					p.line(result.Name, okOrError(result.Passed), result.Detail)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the classifier token request")
	return cmd
}
