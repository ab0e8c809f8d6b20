package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading ~ and returns an absolute, cleaned path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

func (c *Config) normalize() error {
	fields := []*string{
		&c.Paths.WatchDir,
		&c.Paths.StagingDir,
		&c.Paths.LibraryDir,
		&c.Paths.LogDir,
		&c.Paths.SnapshotPath,
		&c.Paths.HistoryDB,
		&c.Paths.SocketPath,
	}
	for _, field := range fields {
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	if c.Paths.SocketPath == "" && c.Paths.LogDir != "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.LogDir, "conveyor.sock")
	}

	c.Conversion.Container = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Conversion.Container)), ".")
	c.Conversion.VideoCodec = strings.TrimSpace(c.Conversion.VideoCodec)
	c.Conversion.AudioCodec = strings.TrimSpace(c.Conversion.AudioCodec)
	c.Conversion.WindowStart = strings.TrimSpace(c.Conversion.WindowStart)
	c.Conversion.WindowStop = strings.TrimSpace(c.Conversion.WindowStop)
	if c.Conversion.MaxConcurrent <= 0 {
		c.Conversion.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Conversion.FFmpegBinary == "" {
		c.Conversion.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Conversion.FFprobeBinary == "" {
		c.Conversion.FFprobeBinary = defaultFFprobeBinary
	}

	if c.Workflow.SettleSeconds <= 0 {
		c.Workflow.SettleSeconds = defaultSettleSeconds
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
	return nil
}
