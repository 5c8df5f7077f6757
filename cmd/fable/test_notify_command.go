package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fable/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" && strings.TrimSpace(cfg.Notifications.NATSURL) == "" {
				fmt.Fprintln(out, "Notifications are not configured; set notifications.ntfy_topic or notifications.nats_url")
				return nil
			}

			logger, closeLog, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			service, err := notifications.NewService(cfg, logger)
			if err != nil {
				return err
			}
			defer service.Close()

			sendCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := service.Publish(sendCtx, notifications.EventTest, notifications.Payload{"message": "fable test notification"}); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
