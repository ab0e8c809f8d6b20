// Package daemon enforces single-instance execution around the workflow
// manager and owns the lock and pid files.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/gofrs/flock"

	"conveyor/internal/config"
	"conveyor/internal/logging"
	"conveyor/internal/workflow"
)

// Daemon wraps the workflow manager with instance locking.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	workflow *workflow.Manager

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
}

// New constructs a daemon around an initialized workflow manager.
func New(cfg *config.Config, manager *workflow.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || manager == nil {
		return nil, errors.New("daemon requires config and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "conveyord.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		workflow: manager,
		lockPath: lockPath,
		pidPath:  filepath.Join(cfg.Paths.LogDir, "conveyord.pid"),
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, writes the pid file, and brings the
// workflow up.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another conveyor daemon instance is already running")
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		d.logger.Warn("pid file not written", logging.String("path", d.pidPath), logging.Error(err))
	}

	if err := d.workflow.Start(ctx); err != nil {
		_ = os.Remove(d.pidPath)
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts the workflow down and releases the lock and pid files.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if err := d.workflow.Close(); err != nil {
		d.logger.Warn("workflow shutdown reported errors", logging.Error(err))
	}
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("pid file not removed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("daemon lock not released", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Running reports whether Start has completed without a matching Stop.
func (d *Daemon) Running() bool { return d.running.Load() }

// LockPath returns the instance lock file location.
func (d *Daemon) LockPath() string { return d.lockPath }

// Workflow exposes the managed workflow for the IPC server.
func (d *Daemon) Workflow() *workflow.Manager { return d.workflow }
