package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"conveyor/internal/classify"
	"conveyor/internal/config"
	"conveyor/internal/convert"
	"conveyor/internal/deps"
	"conveyor/internal/history"
	"conveyor/internal/logging"
	"conveyor/internal/media"
	"conveyor/internal/notifications"
	"conveyor/internal/organize"
	"conveyor/internal/pipeline"
	"conveyor/internal/preflight"
	"conveyor/internal/queue"
	"conveyor/internal/schedule"
	"conveyor/internal/watcher"
)

// Options configures manager construction. Zero fields are built from the
// config; tests inject executors, probes, and schedulers.
type Options struct {
	Config     *config.Config
	Logger     *slog.Logger
	Executors  *pipeline.Executors
	Classifier *classify.Classifier
	Notifier   notifications.Service
	Scheduler  schedule.Scheduler
}

// Manager coordinates discovery, conversion scheduling, and reporting.
type Manager struct {
	cfg        *config.Config
	logger     *slog.Logger
	queue      *queue.Queue
	classifier *classify.Classifier
	notifier   notifications.Service
	store      *history.Store
	scheduler  schedule.Scheduler

	watcher *watcher.Watcher
	gate    *schedule.Gate

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	scanning    bool
	rescan      bool
	windowStart time.Time
	processed   int
	failed      int
	drained     bool
}

// passthroughConverter reports every file as already in its target form.
// Used when the conversion phase is disabled.
type passthroughConverter struct{}

func (passthroughConverter) Convert(_ context.Context, item *media.Item) (string, error) {
	return item.Path, nil
}

// New builds a manager and opens its history store. Close releases it.
func New(opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("workflow: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	execs := buildExecutors(cfg, logger, opts.Executors)

	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.New(cfg.Conversion.FFprobeBinary)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "workflow"),
		classifier: classifier,
		notifier:   notifier,
		store:      store,
		scheduler:  opts.Scheduler,
	}
	m.queue = queue.New(queue.Options{
		MaxConcurrent: cfg.Conversion.MaxConcurrent,
		OnComplete:    m.onItemComplete,
		Executors:     execs,
		Logger:        logger,
	})
	return m, nil
}

func buildExecutors(cfg *config.Config, logger *slog.Logger, override *pipeline.Executors) pipeline.Executors {
	if override != nil {
		return *override
	}
	var converter pipeline.Converter = passthroughConverter{}
	if cfg.Conversion.Enabled {
		converter = convert.New(cfg.Conversion.FFmpegBinary, cfg.Paths.StagingDir, logger)
	}
	mover := organize.NewMover(organize.Options{
		LibraryDir: cfg.Paths.LibraryDir,
		MoviesDir:  cfg.Library.MoviesDir,
		MusicDir:   cfg.Library.MusicDir,
		HomeDir:    cfg.Library.HomeDir,
		Overwrite:  cfg.Library.OverwriteExisting,
	}, logger)
	return pipeline.Executors{
		Converter: converter,
		Mover:     mover,
		Deleter:   organize.NewDeleter(logger),
	}
}

// Start brings the manager up: preflight and dependency checks, snapshot
// restore, the initial discovery scan, the directory watcher, and the
// conversion window gate. Only a missing required binary aborts startup.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.running = true
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	for _, res := range preflight.RunAll(ctx, m.cfg) {
		if res.Passed {
			m.logger.Debug("preflight check passed", logging.String("check", res.Name), logging.String("detail", res.Detail))
			continue
		}
		m.logger.Warn("preflight check failed", logging.String("check", res.Name), logging.String("detail", res.Detail))
	}
	if err := deps.FatalMissing(preflight.CheckSystemDeps(ctx, m.cfg)); err != nil {
		m.teardown()
		return err
	}

	if err := m.queue.RestoreFrom(m.cfg.Paths.SnapshotPath); err != nil {
		// Non-fatal: a damaged snapshot costs queued work, not correctness.
		m.setLastError(err)
		m.logger.Warn("queue snapshot not restored", logging.Error(err))
	}

	m.mu.Lock()
	m.windowStart = time.Now().UTC()
	m.mu.Unlock()

	m.Scan(ctx)

	if err := m.startWatcher(runCtx); err != nil {
		m.teardown()
		return err
	}

	if m.cfg.Conversion.Immediate {
		m.logger.Info("conversion window disabled, dispatching immediately")
		m.queue.Start()
	} else {
		scheduler := m.scheduler
		if scheduler == nil {
			scheduler = schedule.NewCronScheduler()
		}
		gate, err := schedule.NewGate(scheduler, m.queue,
			m.cfg.Conversion.WindowStart, m.cfg.Conversion.WindowStop, m.logger)
		if err != nil {
			m.teardown()
			return err
		}
		m.gate = gate
		gate.Run()
	}

	m.logger.Info("workflow started",
		logging.String("watch_dir", m.cfg.Paths.WatchDir),
		logging.Int("max_concurrent", m.queue.MaxConcurrent()),
	)
	return nil
}

func (m *Manager) startWatcher(ctx context.Context) error {
	settle := time.Duration(m.cfg.Workflow.SettleSeconds) * time.Second
	w, err := watcher.New(watcher.Options{
		Root:   m.cfg.Paths.WatchDir,
		Settle: settle,
		Logger: m.logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return err
	}
	m.watcher = w

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for path := range w.Events() {
			m.ingest(ctx, path)
		}
	}()
	return nil
}

// Close shuts the manager down: the gate and watcher stop, dispatch stops,
// in-flight conversions get up to the configured shutdown timeout to
// finish, and whatever is still pending is persisted for the next run.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if m.gate != nil {
		m.gate.Close()
		m.gate = nil
	}
	if cancel != nil {
		cancel()
	}
	if m.watcher != nil {
		_ = m.watcher.Close()
		m.watcher = nil
	}
	m.wg.Wait()

	m.queue.Stop()
	m.drainWithTimeout()

	var persistErr error
	if err := m.queue.Persist(m.cfg.Paths.SnapshotPath); err != nil {
		persistErr = err
		m.logger.Error("queue snapshot not written", logging.Error(err))
	}

	if err := m.store.Close(); err != nil && persistErr == nil {
		persistErr = err
	}
	m.logger.Info("workflow stopped")
	return persistErr
}

// drainWithTimeout waits for active conversions to finish. After Stop the
// queue dispatches nothing new, so Wait returns once the active set empties.
func (m *Manager) drainWithTimeout() {
	timeout := time.Duration(m.cfg.Workflow.ShutdownTimeout) * time.Second
	done := make(chan struct{})
	go func() {
		m.queue.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("shutdown timeout reached, abandoning in-flight conversions",
			logging.Duration("timeout", timeout))
		m.queue.Cancel()
		<-done
	}
}

// Pause stops dispatching new conversions. In-flight work finishes.
func (m *Manager) Pause() {
	m.logger.Info("dispatch paused")
	m.queue.Stop()
}

// Resume restarts dispatching regardless of the conversion window.
func (m *Manager) Resume() {
	m.logger.Info("dispatch resumed")
	m.queue.Start()
}

// PersistNow writes the queue snapshot on demand.
func (m *Manager) PersistNow() error {
	return m.queue.Persist(m.cfg.Paths.SnapshotPath)
}

// TestNotification sends a probe through the configured notifier.
func (m *Manager) TestNotification(ctx context.Context) error {
	return m.notifier.TestNotification(ctx)
}

// History exposes the outcome store for reporting surfaces.
func (m *Manager) History() *history.Store { return m.store }

// Queue exposes the underlying queue, used by tests and the IPC server.
func (m *Manager) Queue() *queue.Queue { return m.queue }

func (m *Manager) onItemComplete(item *media.Item) {
	timeout := time.Duration(m.cfg.Workflow.NotifyTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancelCtx := context.WithTimeout(context.Background(), timeout)
	defer cancelCtx()

	if _, err := m.store.Record(ctx, item); err != nil {
		m.setLastError(err)
		m.logger.Error("outcome not recorded",
			logging.String(logging.FieldItemPath, item.Path), logging.Error(err))
	}

	m.mu.Lock()
	if item.Status == media.StatusSucceeded {
		m.processed++
	} else {
		m.failed++
	}
	m.mu.Unlock()

	if item.Status == media.StatusSucceeded {
		if err := m.notifier.NotifyItemCompleted(ctx, item); err != nil {
			m.logger.Warn("completion notification failed", logging.Error(err))
		}
	} else {
		if err := m.notifier.NotifyItemFailed(ctx, item); err != nil {
			m.logger.Warn("failure notification failed", logging.Error(err))
		}
	}

	if m.queue.Size() == 0 && m.queue.ActiveCount() == 0 {
		m.notifyDrained(ctx)
	}
}

// notifyDrained reports an emptied queue exactly once per fill. Two items
// finishing at the same instant can both observe the queue at zero, so the
// drained flag, cleared when work is next enqueued, decides which caller
// sends the summary.
func (m *Manager) notifyDrained(ctx context.Context) {
	m.mu.Lock()
	if m.drained {
		m.mu.Unlock()
		return
	}
	m.drained = true
	processed, failed := m.processed, m.failed
	elapsed := time.Since(m.windowStart)
	m.processed, m.failed = 0, 0
	m.windowStart = time.Now().UTC()
	m.mu.Unlock()

	m.logger.Info("queue drained",
		logging.Int("processed", processed), logging.Int("failed", failed))
	if err := m.notifier.NotifyQueueDrained(ctx, processed, failed, elapsed); err != nil {
		m.logger.Warn("drain notification failed", logging.Error(err))
	}
}

// teardown unwinds a partially started manager after a Start failure.
func (m *Manager) teardown() {
	m.mu.Lock()
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if m.gate != nil {
		m.gate.Close()
		m.gate = nil
	}
	if cancel != nil {
		cancel()
	}
	if m.watcher != nil {
		_ = m.watcher.Close()
		m.watcher = nil
	}
	m.wg.Wait()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
