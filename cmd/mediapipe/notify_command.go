package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediapipe/internal/asset"
	"mediapipe/internal/daemonrun"
	"mediapipe/internal/notifications"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Completion notification utilities",
	}

	notifyCmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Publish a synthetic completion event to every configured subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				subs := rt.Notifier.Subscribers()
				if len(subs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notification subscribers configured")
					return nil
				}
				now := time.Now().UTC()
				event := notifications.NewEvent(&asset.Asset{
					Name:         "mediapipe test",
					OriginalName: "mediapipe-test.jpg",
					MIMEType:     "image/jpeg",
					Kind:         asset.KindImage,
					Status:       asset.StatusCompleted,
					CreatedAt:    now,
					UpdatedAt:    now,
				}, now)
				if err := rt.Notifier.Publish(cmd.Context(), event); err != nil {
					return fmt.Errorf("publish test event: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Test event sent to %s\n", strings.Join(subs, ", "))
				return nil
			})
		},
	})

	return notifyCmd
}
