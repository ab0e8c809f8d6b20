// Package testsupport provides builders shared by package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"conveyor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The directories exist, conversion windows are disabled in favor of
// immediate processing, notifications are off, and the ffmpeg/ffprobe
// binaries point at no-op stubs so startup checks pass on any machine.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchDir = filepath.Join(base, "drop")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SnapshotPath = filepath.Join(base, "logs", "queue.json")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "logs", "history.db")
	cfgVal.Paths.SocketPath = filepath.Join(base, "logs", "conveyor.sock")
	cfgVal.Conversion.Immediate = true
	cfgVal.Conversion.WindowStart = ""
	cfgVal.Conversion.WindowStop = ""
	cfgVal.Notifications.NtfyTopic = ""
	cfgVal.Workflow.SettleSeconds = 0
	cfgVal.Workflow.MinFreeSpaceGiB = 0

	for _, dir := range []string{
		cfgVal.Paths.WatchDir, cfgVal.Paths.StagingDir,
		cfgVal.Paths.LibraryDir, cfgVal.Paths.LogDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	cfgVal.Conversion.FFmpegBinary = writeStubBinary(t, binDir, "ffmpeg")
	cfgVal.Conversion.FFprobeBinary = writeStubBinary(t, binDir, "ffprobe")

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

func writeStubBinary(t testing.TB, dir, name string) string {
	t.Helper()
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// WithConversionDisabled turns off the transcode phase on the test config.
func WithConversionDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.Enabled = false
	}
}

// WithWindow sets the conversion window cron patterns and disables
// immediate processing.
func WithWindow(start, stop string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.Immediate = false
		b.cfg.Conversion.WindowStart = start
		b.cfg.Conversion.WindowStop = stop
	}
}

