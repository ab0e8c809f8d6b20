package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured target",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				if resp == nil || !resp.Sent {
					reason := "no response from daemon"
					if resp != nil && resp.Message != "" {
						reason = resp.Message
					}
					return fmt.Errorf("test notification not sent: %s", reason)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification delivered")
				return nil
			})
		},
	}
}
