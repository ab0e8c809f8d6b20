package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/media"
	"conveyor/internal/pipeline"
)

// CompletionFunc receives every item that reaches a terminal status. It is
// invoked outside the queue lock, exactly once per item.
type CompletionFunc func(*media.Item)

// Options configures queue construction.
type Options struct {
	MaxConcurrent int
	OnComplete    CompletionFunc
	Executors     pipeline.Executors
	Logger        *slog.Logger
}

// entry wraps an item with queue-internal bookkeeping.
type entry struct {
	item       *media.Item
	enqueuedAt time.Time
	cancel     context.CancelFunc // nil while pending
	done       chan struct{}
}

// Receipt lets a caller block until one specific item finishes.
type Receipt struct {
	item *media.Item
	done chan struct{}
}

// Done is closed after the item reaches a terminal status and its
// completion callback has run.
func (r *Receipt) Done() <-chan struct{} { return r.done }

// Item returns the enqueued item. Read its terminal state only after Done
// is closed.
func (r *Receipt) Item() *media.Item { return r.item }

// Queue owns the pending sequence and the bounded active set. All
// enqueue/dispatch/complete transitions serialize through one mutex; phase
// execution happens outside it so a slow conversion never blocks
// bookkeeping for other items.
type Queue struct {
	execs      pipeline.Executors
	onComplete CompletionFunc
	logger     *slog.Logger
	max        int

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []*entry
	active    map[string]*entry
	started   bool
	finishing int // workers past their phases but still delivering callbacks
}

// New constructs an empty queue. MaxConcurrent values below one are raised
// to one.
func New(opts Options) *Queue {
	max := opts.MaxConcurrent
	if max < 1 {
		max = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	q := &Queue{
		execs:      opts.Executors,
		onComplete: opts.OnComplete,
		logger:     logging.WithComponent(logger, "queue"),
		max:        max,
		active:     make(map[string]*entry),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// MaxConcurrent returns the configured worker bound.
func (q *Queue) MaxConcurrent() int { return q.max }

// Enqueue appends an item to the pending sequence. It returns
// ErrDuplicatePath when the item's path is already pending or active, and
// never blocks: dispatch happens asynchronously when the queue is started
// and a worker slot is free.
func (q *Queue) Enqueue(item *media.Item) (*Receipt, error) {
	if item == nil || item.Path == "" {
		return nil, fmt.Errorf("enqueue: item with empty path")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.knownLocked(item.Path) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, item.Path)
	}

	item.Status = media.StatusWaiting
	e := &entry{item: item, enqueuedAt: time.Now().UTC(), done: make(chan struct{})}
	q.pending = append(q.pending, e)
	q.logger.Debug("item enqueued",
		logging.String(logging.FieldItemPath, item.Path),
		logging.String("kind", string(item.Kind)),
		logging.Int("pending", len(q.pending)),
	)
	q.dispatchLocked()
	return &Receipt{item: item, done: e.done}, nil
}

// Start begins dispatching pending entries to free worker slots.
// Idempotent: calling Start on a started queue is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	q.logger.Info("queue started",
		logging.Int("pending", len(q.pending)),
		logging.Int("max_concurrent", q.max),
	)
	q.dispatchLocked()
}

// Stop halts new dispatch without interrupting active work. Idempotent.
// Already-active items run to completion.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return
	}
	q.started = false
	q.logger.Info("queue stopped",
		logging.Int("pending", len(q.pending)),
		logging.Int("active", len(q.active)),
	)
}

// Cancel stops dispatch and additionally asks active workers to interrupt
// their external processes. Interruption is best-effort: the external tool
// decides when it actually exits, and interrupted items are recorded as
// failures of the phase they were in.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.started = false
	for _, e := range q.active {
		if e.cancel != nil {
			e.cancel()
		}
	}
	q.logger.Info("queue canceled", logging.Int("interrupted", len(q.active)))
}

// Wait blocks until in-flight work drains: the active set is empty and,
// while the queue is started, the pending sequence is empty too. On a
// stopped (or never started) queue it returns as soon as active work
// finishes.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.active) > 0 || q.finishing > 0 || (q.started && len(q.pending) > 0) {
		q.cond.Wait()
	}
}

// Size returns the number of pending entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ActiveCount returns the number of items currently held by workers.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// EntryInfo is a point-in-time view of one queued item, safe to hand to
// reporting surfaces without exposing queue-owned state.
type EntryInfo struct {
	Path       string
	Kind       media.Kind
	EnqueuedAt time.Time
}

// Entries returns snapshots of the pending sequence (in dispatch order) and
// the active set.
func (q *Queue) Entries() (pending, active []EntryInfo) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending = make([]EntryInfo, 0, len(q.pending))
	for _, e := range q.pending {
		pending = append(pending, entryInfo(e))
	}
	active = make([]EntryInfo, 0, len(q.active))
	for _, e := range q.active {
		active = append(active, entryInfo(e))
	}
	return pending, active
}

func entryInfo(e *entry) EntryInfo {
	return EntryInfo{
		Path:       e.item.Path,
		Kind:       e.item.Kind,
		EnqueuedAt: e.enqueuedAt,
	}
}

// Started reports whether the queue is accepting dispatch.
func (q *Queue) Started() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started
}

func (q *Queue) knownLocked(path string) bool {
	if _, ok := q.active[path]; ok {
		return true
	}
	for _, e := range q.pending {
		if e.item.Path == path {
			return true
		}
	}
	return false
}

// dispatchLocked hands the front of the pending sequence to workers while
// capacity allows. Callers hold q.mu.
func (q *Queue) dispatchLocked() {
	for q.started && len(q.active) < q.max && len(q.pending) > 0 {
		e := q.pending[0]
		q.pending = q.pending[1:]
		q.active[e.item.Path] = e

		ctx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		go q.run(ctx, e)
	}
}

// run executes the full phase pipeline for one entry. Phase calls happen
// outside the queue lock.
func (q *Queue) run(ctx context.Context, e *entry) {
	defer e.cancel()

	pipeline.Run(ctx, q.execs, e.item, q.logger)
	if !e.item.Status.Terminal() {
		// The pipeline contract guarantees a terminal status; resolve
		// anything else as a failure rather than leaving it dangling.
		e.item.MarkFailed(media.PhaseConverting, fmt.Errorf("pipeline ended in non-terminal status %q", e.item.Status))
	}

	q.mu.Lock()
	delete(q.active, e.item.Path)
	q.finishing++
	q.dispatchLocked()
	q.mu.Unlock()

	if q.onComplete != nil {
		q.onComplete(e.item)
	}
	close(e.done)

	// Wake waiters only after the callback ran, so Wait returning implies
	// every terminal item has been delivered.
	q.mu.Lock()
	q.finishing--
	q.cond.Broadcast()
	q.mu.Unlock()
}
