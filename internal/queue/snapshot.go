package queue

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"conveyor/internal/logging"
	"conveyor/internal/media"
)

// snapshot is the on-disk form of a queue between runs. Only pending
// entries appear: in-flight external processes cannot be resumed, so active
// items are lost on a hard restart by design.
type snapshot struct {
	MaxConcurrent int            `json:"maxConcurrent"`
	Items         []snapshotItem `json:"items"`
}

type snapshotItem struct {
	Path       string               `json:"path"`
	Kind       media.Kind           `json:"kind"`
	Conversion media.ConversionSpec `json:"conversionConfig"`
	HomeMedia  bool                 `json:"homeMedia"`
}

// Persist serializes the queue configuration and every pending entry to
// path. Failures come back as *PersistenceError; callers report them and
// continue shutting down.
func (q *Queue) Persist(path string) error {
	q.mu.Lock()
	snap := snapshot{MaxConcurrent: q.max, Items: make([]snapshotItem, 0, len(q.pending))}
	for _, e := range q.pending {
		snap.Items = append(snap.Items, snapshotItem{
			Path:       e.item.Path,
			Kind:       e.item.Kind,
			Conversion: e.item.Conversion,
			HomeMedia:  e.item.HomeMedia,
		})
	}
	q.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "persist", Path: path, Err: err}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &PersistenceError{Op: "persist", Path: path, Err: err}
		}
	}
	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return &PersistenceError{Op: "persist", Path: path, Err: err}
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return &PersistenceError{Op: "persist", Path: path, Err: err}
	}

	q.logger.Info("queue snapshot written",
		logging.String("path", path),
		logging.Int("items", len(snap.Items)),
	)
	return nil
}

// RestoreFrom seeds the pending sequence from a snapshot written by an
// earlier run. An absent file is a fresh start, not an error. Restoration
// must run before the first discovery scan so re-discovered paths hit the
// normal duplicate check instead of racing the restore.
func (q *Queue) RestoreFrom(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "restore", Path: path, Err: err}
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return &PersistenceError{Op: "restore", Path: path, Err: err}
	}

	if snap.MaxConcurrent > 0 && snap.MaxConcurrent != q.max {
		q.logger.Warn("snapshot concurrency differs from configuration",
			logging.Int("snapshot", snap.MaxConcurrent),
			logging.Int("configured", q.max),
		)
	}

	restored := 0
	for _, si := range snap.Items {
		kind, ok := media.ParseKind(string(si.Kind))
		if !ok {
			q.logger.Warn("skipping snapshot entry with unknown kind",
				logging.String(logging.FieldItemPath, si.Path),
				logging.String("kind", string(si.Kind)),
			)
			continue
		}
		item := media.NewItem(si.Path, kind, si.Conversion)
		item.HomeMedia = si.HomeMedia
		if _, err := q.Enqueue(item); err != nil {
			if errors.Is(err, ErrDuplicatePath) {
				continue
			}
			q.logger.Warn("skipping unrestorable snapshot entry",
				logging.String(logging.FieldItemPath, si.Path),
				logging.Error(err),
			)
			continue
		}
		restored++
	}

	q.logger.Info("queue snapshot restored",
		logging.String("path", path),
		logging.Int("items", restored),
	)
	return nil
}

// SnapshotExists reports whether a snapshot file is present at path.
func SnapshotExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
