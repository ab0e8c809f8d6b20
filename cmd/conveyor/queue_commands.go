package main

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"conveyor/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Control the conversion queue",
	}

	queueCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending and active queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Pending) == 0 && len(resp.Active) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				tw := newTable(out, table.Row{"State", "File", "Kind", "Enqueued"})
				for _, e := range resp.Active {
					tw.AppendRow(queueRow(e, "active"))
				}
				for _, e := range resp.Pending {
					tw.AppendRow(queueRow(e, "pending"))
				}
				tw.Render()
				return nil
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "pause",
		Short: "Stop dispatching new conversions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Pause(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Dispatch paused; in-flight conversions finish")
				return nil
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "resume",
		Short: "Restart dispatch regardless of the conversion window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Resume(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Dispatch resumed")
				return nil
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Trigger a discovery scan of the watch directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Scan(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Discovery scan started")
				return nil
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "persist",
		Short: "Write the queue snapshot to disk now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Persist()
				if err != nil {
					return err
				}
				if !resp.Persisted {
					return fmt.Errorf("snapshot not written: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue snapshot written")
				return nil
			})
		},
	})

	return queueCmd
}

func queueRow(e ipc.QueueEntry, state string) table.Row {
	return table.Row{
		state,
		filepath.Base(e.Path),
		e.Kind,
		e.EnqueuedAt.Local().Format("2006-01-02 15:04"),
	}
}
