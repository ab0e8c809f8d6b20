package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"conveyor/internal/classify"
	"conveyor/internal/config"
	"conveyor/internal/daemon"
	"conveyor/internal/media"
	"conveyor/internal/testsupport"
	"conveyor/internal/workflow"
)

func newManager(t *testing.T) (*workflow.Manager, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	classifier := classify.NewWithProbe(func(context.Context, string) (*media.Metadata, error) {
		return &media.Metadata{Container: "mkv"}, nil
	})
	m, err := workflow.New(workflow.Options{Config: cfg, Classifier: classifier})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m, cfg
}

func TestStartWritesPidAndStopCleansUp(t *testing.T) {
	m, cfg := newManager(t)
	d, err := daemon.New(cfg, m, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon should report running")
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "conveyord.pid")
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		t.Fatalf("pid file missing: %v", err)
	}
	if got := strings.TrimSpace(string(pidData)); got != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", got)
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon should report stopped")
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatal("pid file should be removed")
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	first, cfg := newManager(t)
	d, err := daemon.New(cfg, first, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer d.Stop()

	other, _ := newManager(t)
	// Same lock directory as the first instance.
	otherCfg := *cfg
	second, err := daemon.New(&otherCfg, other, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance should be refused")
	}
}
