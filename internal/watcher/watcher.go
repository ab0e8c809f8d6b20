// Package watcher emits the paths of files dropped into the watch
// directory once they have stopped growing. It watches recursively and
// debounces the write bursts a large copy produces, so downstream probing
// never races a half-copied file.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"conveyor/internal/logging"
	"conveyor/internal/services"
)

const defaultSettle = 2 * time.Second

// Options configures a Watcher.
type Options struct {
	// Root is the directory to watch, recursively.
	Root string
	// Settle is how long a file must go without writes before it is
	// reported. Zero means the default of two seconds.
	Settle time.Duration
	Logger *slog.Logger
}

// Watcher reports settled files under a root directory.
type Watcher struct {
	root   string
	settle time.Duration
	logger *slog.Logger

	fsw    *fsnotify.Watcher
	events chan string

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds a watcher for opts.Root. Start must be called before any
// events arrive.
func New(opts Options) (*Watcher, error) {
	if opts.Root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "watcher", "new", "watch root not configured", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	settle := opts.Settle
	if settle <= 0 {
		settle = defaultSettle
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "watcher", "new", opts.Root, err)
	}
	return &Watcher{
		root:    opts.Root,
		settle:  settle,
		logger:  logging.WithComponent(logger, "watcher"),
		fsw:     fsw,
		events:  make(chan string, 64),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Events returns the channel of settled file paths. The channel closes
// when the watcher shuts down.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Start registers the root tree and begins delivering events. It returns
// once watching is established; delivery continues until ctx is cancelled
// or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info("watching for new files", logging.String("root", w.root))

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Close stops the watcher and closes the events channel. The channel is
// closed under the same mutex that guards fire's send, so a settle timer
// that already passed its closed check can never send on a closed channel.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.closed = true
		for path, timer := range w.pending {
			timer.Stop()
			delete(w.pending, path)
		}
		close(w.events)
		w.mu.Unlock()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("cannot watch new directory",
					logging.String("path", event.Name), logging.Error(err))
			}
			return
		}
		w.resetTimer(event.Name)
	case event.Op.Has(fsnotify.Write):
		w.resetTimer(event.Name)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.cancelTimer(event.Name)
	}
}

// resetTimer (re)arms the settle timer for path. Every write pushes the
// deadline out again, so the path fires only after the copy goes quiet.
func (w *Watcher) resetTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.fire(path) })
}

func (w *Watcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
}

// fire delivers one settled path. The send stays inside the mutex so it
// serializes against Close; it is non-blocking, so holding the lock here
// never stalls timers or event handling.
func (w *Watcher) fire(path string) {
	info, err := os.Stat(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	delete(w.pending, path)
	if err != nil || info.IsDir() {
		return
	}
	select {
	case w.events <- path:
	default:
		w.logger.Warn("event buffer full, dropping settled file",
			logging.String("path", path))
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "watcher", "watch", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return services.Wrap(services.ErrExternalTool, "watcher", "watch", path, err)
		}
		return nil
	})
}
