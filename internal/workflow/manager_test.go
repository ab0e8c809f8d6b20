package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"conveyor/internal/classify"
	"conveyor/internal/media"
	"conveyor/internal/pipeline"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/testsupport"
	"conveyor/internal/workflow"
)

func stubClassifier() *classify.Classifier {
	return classify.NewWithProbe(func(_ context.Context, _ string) (*media.Metadata, error) {
		return &media.Metadata{Container: "mkv", VideoCodec: "hevc"}, nil
	})
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	drained   int
}

func (n *recordingNotifier) NotifyItemCompleted(_ context.Context, item *media.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, item.Path)
	return nil
}

func (n *recordingNotifier) NotifyItemFailed(_ context.Context, item *media.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, item.Path)
	return nil
}

func (n *recordingNotifier) NotifyQueueDrained(context.Context, int, int, time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drained++
	return nil
}

func (n *recordingNotifier) NotifyError(context.Context, error, string) error { return nil }
func (n *recordingNotifier) TestNotification(context.Context) error           { return nil }

func (n *recordingNotifier) snapshot() (completed, failed []string, drained int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.completed...), append([]string(nil), n.failed...), n.drained
}

type manualScheduler struct {
	mu  sync.Mutex
	fns map[string][]func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{fns: make(map[string][]func())}
}

func (s *manualScheduler) OnFire(pattern string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns[pattern] = append(s.fns[pattern], fn)
	return nil
}

func (s *manualScheduler) Start() {}
func (s *manualScheduler) Stop()  {}

func (s *manualScheduler) fire(pattern string) {
	s.mu.Lock()
	fns := append([]func(){}, s.fns[pattern]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManagerProcessesPreexistingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	source := filepath.Join(cfg.Paths.WatchDir, "big_film.mkv")
	testsupport.WriteFile(t, source, 512)

	notifier := &recordingNotifier{}
	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	moved := filepath.Join(cfg.Paths.LibraryDir, "movies", "Big Film", "big_film.mkv")
	waitUntil(t, "file to reach the library", func() bool {
		_, err := os.Stat(moved)
		return err == nil
	})

	waitUntil(t, "completion notification", func() bool {
		completed, _, drained := notifier.snapshot()
		return len(completed) == 1 && drained == 1
	})

	records, err := m.History().Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Status != media.StatusSucceeded {
		t.Fatalf("history = %+v", records)
	}
}

func TestManagerPicksUpDroppedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	source := filepath.Join(cfg.Paths.WatchDir, "late_arrival.mkv")
	testsupport.WriteFile(t, source, 512)

	moved := filepath.Join(cfg.Paths.LibraryDir, "movies", "Late Arrival", "late_arrival.mkv")
	waitUntil(t, "dropped file to reach the library", func() bool {
		_, err := os.Stat(moved)
		return err == nil
	})
}

func TestWindowHoldsDispatchAndClosePersistsPending(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithConversionDisabled(),
		testsupport.WithWindow("0 1 * * *", "0 7 * * *"),
	)
	source := filepath.Join(cfg.Paths.WatchDir, "held.mkv")
	testsupport.WriteFile(t, source, 128)

	scheduler := newManualScheduler()
	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
		Scheduler:  scheduler,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := m.Status(context.Background())
	if status.Dispatching {
		t.Fatal("dispatch should wait for the window to open")
	}
	if status.Pending != 1 {
		t.Fatalf("pending = %d, want 1", status.Pending)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !queue.SnapshotExists(cfg.Paths.SnapshotPath) {
		t.Fatal("snapshot should exist after shutdown")
	}
	data, err := os.ReadFile(cfg.Paths.SnapshotPath)
	if err != nil {
		t.Fatal(err)
	}
	var snap struct {
		Items []struct {
			Path string `json:"path"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Items) != 1 || snap.Items[0].Path != source {
		t.Fatalf("snapshot items = %+v", snap.Items)
	}
}

func TestWindowOpenTriggersDispatch(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithConversionDisabled(),
		testsupport.WithWindow("0 1 * * *", "0 7 * * *"),
	)
	source := filepath.Join(cfg.Paths.WatchDir, "windowed.mkv")
	testsupport.WriteFile(t, source, 128)

	scheduler := newManualScheduler()
	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
		Scheduler:  scheduler,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	scheduler.fire("0 1 * * *")

	moved := filepath.Join(cfg.Paths.LibraryDir, "movies", "Windowed", "windowed.mkv")
	waitUntil(t, "windowed file to reach the library", func() bool {
		_, err := os.Stat(moved)
		return err == nil
	})
}

func TestScanSkipsUnrecognizedFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "notes.txt"), 64)

	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	status := m.Status(context.Background())
	if status.Pending != 0 || status.Active != 0 {
		t.Fatalf("unrecognized file should not queue: %+v", status)
	}
}

func TestStartFailsWithoutRequiredBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Conversion.Enabled = true
	cfg.Conversion.FFmpegBinary = "clearly-not-present-binary"
	cfg.Conversion.FFprobeBinary = "clearly-not-present-binary"

	m, err := workflow.New(workflow.Options{Config: cfg, Classifier: stubClassifier()})
	if err != nil {
		t.Fatal(err)
	}
	err = m.Start(context.Background())
	if !errors.Is(err, services.ErrMissingDependency) {
		t.Fatalf("got %v, want ErrMissingDependency", err)
	}
}

func TestPauseHoldsNewDispatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	m.Pause()
	source := filepath.Join(cfg.Paths.WatchDir, "paused.mkv")
	testsupport.WriteFile(t, source, 128)

	waitUntil(t, "paused file to queue", func() bool {
		return m.Status(context.Background()).Pending == 1
	})

	m.Resume()
	moved := filepath.Join(cfg.Paths.LibraryDir, "movies", "Paused", "paused.mkv")
	waitUntil(t, "resumed file to reach the library", func() bool {
		_, err := os.Stat(moved)
		return err == nil
	})
}

func TestFailedItemRecordedAndNotified(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	// A destination that already exists and may not be overwritten fails the
	// move phase.
	cfg.Library.OverwriteExisting = false
	blocked := filepath.Join(cfg.Paths.LibraryDir, "movies", "Clash", "clash.mkv")
	testsupport.WriteFile(t, blocked, 16)

	notifier := &recordingNotifier{}
	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	source := filepath.Join(cfg.Paths.WatchDir, "clash.mkv")
	testsupport.WriteFile(t, source, 128)

	waitUntil(t, "failure notification", func() bool {
		_, failedItems, _ := notifier.snapshot()
		return len(failedItems) == 1
	})

	records, err := m.History().ForPath(context.Background(), source)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Status != media.StatusFailed || records[0].FailedPhase != media.PhaseMoving {
		t.Fatalf("history = %+v", records)
	}
	if !strings.Contains(records[0].ErrorMessage, "exists") {
		t.Fatalf("error message = %q", records[0].ErrorMessage)
	}
}

func TestScanRequestedDuringScanRunsAgain(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "first.mkv"), 64)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	classifier := classify.NewWithProbe(func(_ context.Context, _ string) (*media.Metadata, error) {
		once.Do(func() {
			close(probeStarted)
			<-release
		})
		return &media.Metadata{Container: "mkv"}, nil
	})

	m, err := workflow.New(workflow.Options{Config: cfg, Classifier: classifier})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		m.Scan(context.Background())
		close(done)
	}()
	<-probeStarted

	// Appears mid-scan; only the rerun pass can pick it up.
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "second.mkv"), 64)
	m.Scan(context.Background())

	close(release)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scan did not finish")
	}

	if size := m.Queue().Size(); size != 2 {
		t.Fatalf("pending = %d, want 2 after rerun pass", size)
	}
}

func TestSubtitleRidesAlongWithItsVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "Some.Movie.mkv"), 256)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "Some.Movie.srt"), 16)

	notifier := &recordingNotifier{}
	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	titleDir := filepath.Join(cfg.Paths.LibraryDir, "movies", "Some Movie")
	waitUntil(t, "video and subtitle to land in the title folder", func() bool {
		_, videoErr := os.Stat(filepath.Join(titleDir, "Some.Movie.mkv"))
		_, subErr := os.Stat(filepath.Join(titleDir, "Some.Movie.srt"))
		return videoErr == nil && subErr == nil
	})

	waitUntil(t, "queue to drain", func() bool {
		status := m.Status(context.Background())
		return status.Pending == 0 && status.Active == 0
	})

	completed, failed, _ := notifier.snapshot()
	if len(failed) != 0 {
		t.Fatalf("no item should fail, got %v", failed)
	}
	if len(completed) != 1 {
		t.Fatalf("only the video should complete, got %v", completed)
	}

	summary, err := m.History().Summarize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 1 || summary.Failed != 0 {
		t.Fatalf("history summary = %+v, want one succeeded record", summary)
	}
}

func TestLoneSubtitleStillMovesOnItsOwn(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "orphan.srt"), 16)

	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	moved := filepath.Join(cfg.Paths.LibraryDir, "movies", "orphan.srt")
	waitUntil(t, "lone subtitle to reach the library", func() bool {
		_, err := os.Stat(moved)
		return err == nil
	})
}

type gatedConverter struct {
	arrived chan struct{}
	release chan struct{}
}

func (c *gatedConverter) Convert(_ context.Context, item *media.Item) (string, error) {
	c.arrived <- struct{}{}
	<-c.release
	return item.Path, nil
}

type inPlaceMover struct{}

func (inPlaceMover) Move(_ context.Context, item *media.Item) (pipeline.MoveResult, error) {
	return pipeline.MoveResult{FinalPath: item.Path}, nil
}

type noopDeleter struct{}

func (noopDeleter) Delete(context.Context, string) error { return nil }

func TestQueueDrainReportedOnceWhenFinishersTie(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConversionDisabled())
	cfg.Conversion.MaxConcurrent = 2
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "one.mkv"), 64)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "two.mkv"), 64)

	conv := &gatedConverter{arrived: make(chan struct{}, 2), release: make(chan struct{})}
	notifier := &recordingNotifier{}
	m, err := workflow.New(workflow.Options{
		Config:     cfg,
		Classifier: stubClassifier(),
		Notifier:   notifier,
		Executors: &pipeline.Executors{
			Converter: conv,
			Mover:     inPlaceMover{},
			Deleter:   noopDeleter{},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Close()

	// Hold both conversions in flight, then let them finish together so
	// both workers observe the queue hitting zero at the same time.
	for i := 0; i < 2; i++ {
		select {
		case <-conv.arrived:
		case <-time.After(10 * time.Second):
			t.Fatal("conversion did not start")
		}
	}
	close(conv.release)

	waitUntil(t, "both items to complete", func() bool {
		completed, _, _ := notifier.snapshot()
		return len(completed) == 2
	})

	// Leave room for a second, spurious drain report to arrive.
	time.Sleep(200 * time.Millisecond)
	if _, _, drained := notifier.snapshot(); drained != 1 {
		t.Fatalf("drain notifications = %d, want 1", drained)
	}
}
