package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"faceomatic/internal/notifications"
)

func newWebhooksCommand(ctx *commandContext) *cobra.Command {
	webhooksCmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage the webhook registry reports are posted to",
	}
	webhooksCmd.AddCommand(
		&cobra.Command{
			Use:   "add URL",
			Short: "Register a webhook URL",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				registry, err := ctx.registry()
				if err != nil {
					return err
				}
				added, err := registry.Add(args[0])
				if err != nil {
					return err
				}
				if !added {
					fmt.Fprintln(cmd.OutOrStdout(), "Webhook already registered")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Webhook registered")
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List registered webhook URLs",
			RunE: func(cmd *cobra.Command, args []string) error {
				registry, err := ctx.registry()
				if err != nil {
					return err
				}
				urls, err := registry.List()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if urls == nil {
						urls = []string{}
					}
					return writeJSON(cmd, urls)
				}
				if len(urls) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No webhooks registered in %s\n", registry.Path())
					return nil
				}
				for _, u := range urls {
					fmt.Fprintln(cmd.OutOrStdout(), u)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove URL",
			Short: "Remove a webhook URL",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				registry, err := ctx.registry()
				if err != nil {
					return err
				}
				removed, err := registry.Remove(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("webhook %s is not registered", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Webhook removed")
				return nil
			},
		},
		newWebhooksTestCommand(ctx),
	)
	return webhooksCmd
}

func newWebhooksTestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Post a test message to every registered webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Notifications.Enabled {
				return fmt.Errorf("notifications are disabled (notifications.enabled = false)")
			}
			registry, err := ctx.registry()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			delivery, err := notifications.NewService(cfg, registry, logger).Test(cmd.Context())
			if ctx.jsonOutput() {
				if encErr := writeJSON(cmd, delivery); encErr != nil {
					return encErr
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d of %d\n", delivery.Delivered, delivery.Targets)
			return err
		},
	}
}
