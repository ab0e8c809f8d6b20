package main

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"conveyor/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent completed and failed items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.HistoryList(limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Records) == 0 {
					fmt.Fprintln(out, "No completed items yet")
					return nil
				}
				tw := newTable(out, table.Row{"ID", "File", "Kind", "Outcome", "Completed"})
				for _, rec := range resp.Records {
					tw.AppendRow(table.Row{
						rec.ID,
						filepath.Base(rec.Path),
						rec.Kind,
						historyOutcome(rec),
						rec.CompletedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				rightAlign(tw, 1)
				tw.Render()
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show")
	return cmd
}

func historyOutcome(rec ipc.HistoryRecord) string {
	if rec.Status == "succeeded" {
		if rec.SubtitleError != "" {
			return "succeeded (subtitle copy failed)"
		}
		return "succeeded"
	}
	outcome := "failed"
	if rec.FailedPhase != "" {
		outcome = "failed (" + rec.FailedPhase + ")"
	}
	if rec.ErrorMessage != "" {
		outcome += ": " + rec.ErrorMessage
	}
	return outcome
}
