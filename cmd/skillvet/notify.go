package main

import (
	"fmt"

	"skillvet/internal/config"
	"skillvet/internal/notify"
	"skillvet/internal/telemetry"

	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Manage block notifications",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test message to the configured Slack target",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		m := notify.NewManager(notify.Config{
			Enabled:    true,
			Token:      cfg.SlackToken,
			Channel:    cfg.SlackChannel,
			WebhookURL: cfg.SlackWebhookURL,
		}, nil)
		if err := m.Test(cmd.Context()); err != nil {
			telemetry.LogError("Notification test failed", err)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
		return nil
	},
}

func init() {
	notifyCmd.AddCommand(notifyTestCmd)
	rootCmd.AddCommand(notifyCmd)
}
