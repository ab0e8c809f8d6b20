package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"conveyor/internal/ipc"
	"conveyor/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checkDeps bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := colorEnabled(out)

			err := ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				sectionHeader(out, "Daemon", colorize)
				runKind := statusError
				if status.Running {
					runKind = statusOK
				}
				statusLine(out, runKind, "Running", fmt.Sprintf("pid %d", status.PID), colorize)

				dispatchKind := statusWarn
				dispatchMsg := "window closed or paused"
				if status.Dispatching {
					dispatchKind = statusOK
					dispatchMsg = ""
				}
				statusLine(out, dispatchKind, "Dispatching", dispatchMsg, colorize)
				if status.Scanning {
					statusLine(out, statusInfo, "Scanning", "discovery in progress", colorize)
				}
				if status.LastError != "" {
					statusLine(out, statusWarn, "Last error", status.LastError, colorize)
				}

				sectionHeader(out, "Queue", colorize)
				tw := newTable(out, table.Row{"Pending", "Active", "Max", "Processed", "Failed", "Recorded"})
				tw.AppendRow(table.Row{
					status.Pending, status.Active, status.MaxConcurrent,
					status.Processed, status.Failed, status.HistoryTotal,
				})
				rightAlign(tw, 1, 2, 3, 4, 5, 6)
				tw.Render()
				return nil
			})
			if err != nil {
				return err
			}

			if checkDeps {
				cfg, cfgErr := ctx.ensureConfig()
				if cfgErr != nil {
					return cfgErr
				}
				sectionHeader(out, "Dependencies", colorize)
				for _, dep := range preflight.CheckSystemDeps(context.Background(), cfg) {
					kind := statusError
					msg := dep.Detail
					if dep.Available {
						kind = statusOK
						msg = dep.Command
					} else if dep.Optional {
						kind = statusWarn
					}
					statusLine(out, kind, dep.Name, msg, colorize)
				}
				for _, check := range preflight.RunAll(context.Background(), cfg) {
					kind := statusError
					if check.Passed {
						kind = statusOK
					}
					statusLine(out, kind, check.Name, check.Detail, colorize)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkDeps, "checks", false, "Also run dependency and environment checks")
	return cmd
}
