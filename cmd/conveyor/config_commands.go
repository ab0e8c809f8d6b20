package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"conveyor/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				target = config.DefaultConfigPath()
			}
			expanded, err := config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			if overwrite {
				if err := os.Remove(expanded); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove existing config: %w", err)
				}
			}
			if err := config.WriteSample(expanded); err != nil {
				if !overwrite {
					if _, statErr := os.Stat(expanded); statErr == nil {
						return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", expanded)
					}
				}
				return fmt.Errorf("write sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", expanded)
			fmt.Fprintln(out, "Edit the file to set the watch, staging, and library directories before starting conveyord.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n\n", ctx.configPath)
			tw := newTable(out, table.Row{"Setting", "Value"})
			tw.AppendRows([]table.Row{
				{"Watch directory", cfg.Paths.WatchDir},
				{"Staging directory", cfg.Paths.StagingDir},
				{"Library directory", cfg.Paths.LibraryDir},
				{"Log directory", cfg.Paths.LogDir},
				{"Snapshot path", cfg.Paths.SnapshotPath},
				{"History database", cfg.Paths.HistoryDB},
				{"Socket path", cfg.Paths.SocketPath},
				{"Conversion enabled", yesNo(cfg.Conversion.Enabled)},
				{"Max concurrent", cfg.Conversion.MaxConcurrent},
				{"Immediate dispatch", yesNo(cfg.Conversion.Immediate)},
				{"Window start", cfg.Conversion.WindowStart},
				{"Window stop", cfg.Conversion.WindowStop},
				{"Notifications", notificationTarget(cfg.Notifications.NtfyTopic)},
			})
			tw.Render()
			return nil
		},
	}
}

func notificationTarget(topic string) string {
	if strings.TrimSpace(topic) == "" {
		return "disabled"
	}
	return topic
}
