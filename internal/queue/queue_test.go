package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"conveyor/internal/media"
	"conveyor/internal/pipeline"
	"conveyor/internal/queue"
)

// scriptedConverter records conversion starts and can block until released
// or fail selected paths.
type scriptedConverter struct {
	mu        sync.Mutex
	starts    []string
	block     chan struct{}
	failPaths map[string]bool
}

func (c *scriptedConverter) Convert(ctx context.Context, item *media.Item) (string, error) {
	c.mu.Lock()
	c.starts = append(c.starts, item.Path)
	c.mu.Unlock()

	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.mu.Lock()
	fail := c.failPaths[item.Path]
	c.mu.Unlock()
	if fail {
		return "", errors.New("transcode exploded")
	}
	return item.Path + ".converted", nil
}

func (c *scriptedConverter) startOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]string, len(c.starts))
	copy(cp, c.starts)
	return cp
}

type okMover struct{}

func (okMover) Move(_ context.Context, item *media.Item) (pipeline.MoveResult, error) {
	return pipeline.MoveResult{FinalPath: "/library" + item.Path}, nil
}

type okDeleter struct{}

func (okDeleter) Delete(context.Context, string) error { return nil }

// completionLog counts callback deliveries per path.
type completionLog struct {
	mu    sync.Mutex
	items map[string]int
	last  map[string]*media.Item
}

func newCompletionLog() *completionLog {
	return &completionLog{items: map[string]int{}, last: map[string]*media.Item{}}
}

func (l *completionLog) record(item *media.Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := item.Path
	if item.OriginalPath != "" {
		key = item.OriginalPath
	}
	l.items[key]++
	l.last[key] = item
}

func (l *completionLog) count(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items[path]
}

func (l *completionLog) item(path string) *media.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last[path]
}

func newTestQueue(maxConcurrent int, converter *scriptedConverter, log *completionLog) *queue.Queue {
	opts := queue.Options{
		MaxConcurrent: maxConcurrent,
		Executors: pipeline.Executors{
			Converter: converter,
			Mover:     okMover{},
			Deleter:   okDeleter{},
		},
	}
	if log != nil {
		opts.OnComplete = log.record
	}
	return queue.New(opts)
}

func videoItem(path string) *media.Item {
	return media.NewItem(path, media.KindVideo, media.ConversionSpec{Container: "mkv"})
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEnqueueRejectsDuplicatePath(t *testing.T) {
	converter := &scriptedConverter{block: make(chan struct{})}
	q := newTestQueue(1, converter, nil)

	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); !errors.Is(err, queue.ErrDuplicatePath) {
		t.Fatalf("duplicate while pending: got %v, want ErrDuplicatePath", err)
	}

	q.Start()
	waitUntil(t, "item active", func() bool { return q.ActiveCount() == 1 })
	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); !errors.Is(err, queue.ErrDuplicatePath) {
		t.Fatalf("duplicate while active: got %v, want ErrDuplicatePath", err)
	}

	close(converter.block)
	q.Wait()

	// After termination the path is free again.
	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); err != nil {
		t.Fatalf("re-enqueue after terminal state failed: %v", err)
	}
}

func TestActiveCountBoundedByMaxConcurrent(t *testing.T) {
	converter := &scriptedConverter{block: make(chan struct{})}
	q := newTestQueue(2, converter, nil)

	for i := 0; i < 6; i++ {
		if _, err := q.Enqueue(videoItem(fmt.Sprintf("/drop/%d.mkv", i))); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}
	q.Start()
	waitUntil(t, "workers saturated", func() bool { return q.ActiveCount() == 2 })

	if q.ActiveCount() != 2 {
		t.Fatalf("ActiveCount = %d, want 2", q.ActiveCount())
	}
	if q.Size() != 4 {
		t.Fatalf("Size = %d, want 4", q.Size())
	}

	close(converter.block)
	q.Wait()
	if q.ActiveCount() != 0 || q.Size() != 0 {
		t.Fatalf("queue not drained: active=%d pending=%d", q.ActiveCount(), q.Size())
	}
}

func TestDispatchOrderIsFIFO(t *testing.T) {
	converter := &scriptedConverter{}
	q := newTestQueue(1, converter, nil)

	paths := []string{"/drop/1.mkv", "/drop/2.mkv", "/drop/3.mkv"}
	for _, path := range paths {
		if _, err := q.Enqueue(videoItem(path)); err != nil {
			t.Fatal(err)
		}
	}
	q.Start()
	q.Wait()

	order := converter.startOrder()
	if len(order) != len(paths) {
		t.Fatalf("converter ran %d times, want %d", len(order), len(paths))
	}
	for i, path := range paths {
		if order[i] != path {
			t.Fatalf("dispatch order %v, want %v", order, paths)
		}
	}
}

func TestStartIsIdempotent(t *testing.T) {
	converter := &scriptedConverter{block: make(chan struct{})}
	q := newTestQueue(1, converter, nil)

	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); err != nil {
		t.Fatal(err)
	}
	q.Start()
	q.Start()
	q.Start()
	waitUntil(t, "single dispatch", func() bool { return q.ActiveCount() == 1 })

	if got := len(converter.startOrder()); got != 1 {
		t.Fatalf("converter started %d times after repeated Start, want 1", got)
	}
	close(converter.block)
	q.Wait()
}

func TestStopHoldsPendingAndDrainsActive(t *testing.T) {
	converter := &scriptedConverter{block: make(chan struct{})}
	log := newCompletionLog()
	q := newTestQueue(1, converter, log)

	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); err != nil {
		t.Fatal(err)
	}
	q.Start()
	waitUntil(t, "A active", func() bool { return q.ActiveCount() == 1 })

	if _, err := q.Enqueue(videoItem("/drop/b.mkv")); err != nil {
		t.Fatal(err)
	}
	q.Stop()
	q.Stop() // idempotent

	close(converter.block)
	q.Wait()

	if log.count("/drop/a.mkv") != 1 {
		t.Fatalf("A completed %d times, want 1", log.count("/drop/a.mkv"))
	}
	if q.Size() != 1 {
		t.Fatalf("pending after stop = %d, want B still held", q.Size())
	}
	if got := len(converter.startOrder()); got != 1 {
		t.Fatalf("converter ran %d times after Stop, want 1", got)
	}

	// Start again releases the held entry.
	q.Start()
	q.Wait()
	if log.count("/drop/b.mkv") != 1 {
		t.Fatalf("B completed %d times after restart, want 1", log.count("/drop/b.mkv"))
	}
}

func TestWaitOnNeverStartedQueueReturns(t *testing.T) {
	q := newTestQueue(1, &scriptedConverter{}, nil)
	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked on a never-started queue")
	}
}

func TestScenarioSuccessAndFailure(t *testing.T) {
	converter := &scriptedConverter{failPaths: map[string]bool{"/drop/b.mkv": true}}
	log := newCompletionLog()
	q := newTestQueue(1, converter, log)

	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(videoItem("/drop/b.mkv")); err != nil {
		t.Fatal(err)
	}
	q.Start()
	q.Wait()

	a := log.item("/drop/a.mkv")
	if a == nil || a.Status != media.StatusSucceeded {
		t.Fatalf("A terminal state = %+v, want succeeded", a)
	}
	b := log.item("/drop/b.mkv")
	if b == nil || b.Status != media.StatusFailed || b.FailedPhase() != media.PhaseConverting {
		t.Fatalf("B terminal state = %+v, want failed(converting)", b)
	}
	if log.count("/drop/a.mkv") != 1 || log.count("/drop/b.mkv") != 1 {
		t.Fatal("completion callbacks must fire exactly once per item")
	}
}

func TestFailureDoesNotAbortOtherItems(t *testing.T) {
	converter := &scriptedConverter{failPaths: map[string]bool{"/drop/0.mkv": true}}
	log := newCompletionLog()
	q := newTestQueue(2, converter, log)

	for i := 0; i < 4; i++ {
		if _, err := q.Enqueue(videoItem(fmt.Sprintf("/drop/%d.mkv", i))); err != nil {
			t.Fatal(err)
		}
	}
	q.Start()
	q.Wait()

	for i := 1; i < 4; i++ {
		path := fmt.Sprintf("/drop/%d.mkv", i)
		item := log.item(path)
		if item == nil || item.Status != media.StatusSucceeded {
			t.Fatalf("%s terminal state = %+v, want succeeded", path, item)
		}
	}
}

func TestCancelMidConversion(t *testing.T) {
	converter := &scriptedConverter{block: make(chan struct{})}
	log := newCompletionLog()
	q := newTestQueue(1, converter, log)

	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); err != nil {
		t.Fatal(err)
	}
	q.Start()
	waitUntil(t, "conversion running", func() bool { return q.ActiveCount() == 1 })

	q.Cancel()
	q.Wait()

	item := log.item("/drop/a.mkv")
	if item == nil || item.Status != media.StatusFailed || item.FailedPhase() != media.PhaseConverting {
		t.Fatalf("canceled item = %+v, want failed(converting)", item)
	}
	// The path is enqueueable again after the interruption.
	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); err != nil {
		t.Fatalf("re-enqueue after cancel failed: %v", err)
	}
}

func TestReceiptSignalsSingleItemCompletion(t *testing.T) {
	converter := &scriptedConverter{}
	q := newTestQueue(1, converter, nil)

	receipt, err := q.Enqueue(videoItem("/drop/a.mkv"))
	if err != nil {
		t.Fatal(err)
	}
	q.Start()

	select {
	case <-receipt.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("receipt never signaled")
	}
	if receipt.Item().Status != media.StatusSucceeded {
		t.Fatalf("receipt item status = %s", receipt.Item().Status)
	}
}

func TestAccountingMatchesOutstandingItems(t *testing.T) {
	converter := &scriptedConverter{block: make(chan struct{})}
	q := newTestQueue(2, converter, nil)

	const total = 5
	for i := 0; i < total; i++ {
		if _, err := q.Enqueue(videoItem(fmt.Sprintf("/drop/%d.mkv", i))); err != nil {
			t.Fatal(err)
		}
	}
	if q.Size()+q.ActiveCount() != total {
		t.Fatalf("before start: size+active = %d, want %d", q.Size()+q.ActiveCount(), total)
	}
	q.Start()
	waitUntil(t, "saturation", func() bool { return q.ActiveCount() == 2 })
	if q.Size()+q.ActiveCount() != total {
		t.Fatalf("while running: size+active = %d, want %d", q.Size()+q.ActiveCount(), total)
	}
	close(converter.block)
	q.Wait()
	if q.Size()+q.ActiveCount() != 0 {
		t.Fatalf("after drain: size+active = %d, want 0", q.Size()+q.ActiveCount())
	}
}

func TestEntriesReflectPendingAndActive(t *testing.T) {
	converter := &scriptedConverter{block: make(chan struct{})}
	q := newTestQueue(1, converter, nil)

	if _, err := q.Enqueue(videoItem("/drop/a.mkv")); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(videoItem("/drop/b.mkv")); err != nil {
		t.Fatal(err)
	}

	pending, active := q.Entries()
	if len(pending) != 2 || len(active) != 0 {
		t.Fatalf("before start: pending=%d active=%d", len(pending), len(active))
	}
	if pending[0].Path != "/drop/a.mkv" || pending[1].Path != "/drop/b.mkv" {
		t.Fatalf("pending order = %v, %v", pending[0].Path, pending[1].Path)
	}

	q.Start()
	waitUntil(t, "first item to go active", func() bool {
		return q.ActiveCount() == 1
	})

	pending, active = q.Entries()
	if len(pending) != 1 || len(active) != 1 {
		t.Fatalf("mid-run: pending=%d active=%d", len(pending), len(active))
	}
	if active[0].Path != "/drop/a.mkv" {
		t.Fatalf("active entry = %q", active[0].Path)
	}
	if active[0].Kind != media.KindVideo || active[0].EnqueuedAt.IsZero() {
		t.Fatalf("active entry detail = %+v", active[0])
	}

	close(converter.block)
	q.Wait()
	pending, active = q.Entries()
	if len(pending) != 0 || len(active) != 0 {
		t.Fatalf("after drain: pending=%d active=%d", len(pending), len(active))
	}
}
