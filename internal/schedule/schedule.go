// Package schedule gates the task queue to a configured time window. Two
// cron-style triggers start and stop dispatch; the queue's idempotent
// Start/Stop make the gate compose safely with manual control, so triggers
// firing out of order never double-start dispatch or wedge the queue.
package schedule

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"

	"conveyor/internal/logging"
)

// Scheduler is the minimal trigger capability the gate depends on. The
// production implementation wraps a cron runner; tests substitute a manual
// one.
type Scheduler interface {
	// OnFire registers fn to run every time the cron pattern matches.
	OnFire(pattern string, fn func()) error
	Start()
	Stop()
}

// Target is the queue surface the gate drives.
type Target interface {
	Start()
	Stop()
}

// CronScheduler implements Scheduler with robfig/cron using standard
// five-field expressions.
type CronScheduler struct {
	runner *cron.Cron
}

// NewCronScheduler builds an idle cron runner.
func NewCronScheduler() *CronScheduler {
	return &CronScheduler{runner: cron.New()}
}

func (s *CronScheduler) OnFire(pattern string, fn func()) error {
	if _, err := s.runner.AddFunc(pattern, fn); err != nil {
		return fmt.Errorf("cron pattern %q: %w", pattern, err)
	}
	return nil
}

func (s *CronScheduler) Start() { s.runner.Start() }

func (s *CronScheduler) Stop() { s.runner.Stop() }

// Gate wires the start/stop triggers to a queue.
type Gate struct {
	scheduler Scheduler
	logger    *slog.Logger
}

// NewGate registers the window triggers on the scheduler. The triggers are
// independent of manual Start/Stop calls on the same target.
func NewGate(scheduler Scheduler, target Target, startPattern, stopPattern string, logger *slog.Logger) (*Gate, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("schedule: scheduler is required")
	}
	if target == nil {
		return nil, fmt.Errorf("schedule: target is required")
	}
	logger = logging.WithComponent(logger, "schedule")

	startPattern = strings.TrimSpace(startPattern)
	stopPattern = strings.TrimSpace(stopPattern)
	if startPattern == "" || stopPattern == "" {
		return nil, fmt.Errorf("schedule: both window patterns are required")
	}

	if err := scheduler.OnFire(startPattern, func() {
		logger.Info("conversion window opened", logging.String("pattern", startPattern))
		target.Start()
	}); err != nil {
		return nil, err
	}
	if err := scheduler.OnFire(stopPattern, func() {
		// Graceful drain: in-flight conversions finish past the window.
		logger.Info("conversion window closed", logging.String("pattern", stopPattern))
		target.Stop()
	}); err != nil {
		return nil, err
	}

	return &Gate{scheduler: scheduler, logger: logger}, nil
}

// Run arms the triggers.
func (g *Gate) Run() {
	g.scheduler.Start()
}

// Close disarms the triggers. Safe to call regardless of Run.
func (g *Gate) Close() {
	g.scheduler.Stop()
}
