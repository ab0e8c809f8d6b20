package workflow

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/google/uuid"

	"conveyor/internal/classify"
	"conveyor/internal/logging"
	"conveyor/internal/media"
	"conveyor/internal/queue"
	"conveyor/internal/services"
)

// Scan walks the watch directory and enqueues every classifiable file.
// Re-discovered paths hit the queue's duplicate check and are skipped
// quietly; a file that cannot be probed is logged and dropped from this
// pass, to be retried on the next one. A Scan requested while one is
// already running marks a rerun instead of walking concurrently, and the
// running pass repeats once more before returning.
func (m *Manager) Scan(ctx context.Context) {
	m.mu.Lock()
	if m.scanning {
		m.rescan = true
		m.mu.Unlock()
		return
	}
	m.scanning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.scanning = false
		m.mu.Unlock()
	}()

	for {
		m.scanOnce(ctx)

		m.mu.Lock()
		again := m.rescan
		m.rescan = false
		m.mu.Unlock()
		if !again || ctx.Err() != nil {
			return
		}
	}
}

// scanOnce performs a single walk of the watch directory.
func (m *Manager) scanOnce(ctx context.Context) {
	scanID := uuid.NewString()
	scanCtx := services.WithRequestID(ctx, scanID)
	logger := logging.WithContext(scanCtx, m.logger)

	logger.Info("discovery scan started", logging.String("root", m.cfg.Paths.WatchDir))

	found := 0
	err := filepath.WalkDir(m.cfg.Paths.WatchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("discovery cannot read path", logging.String("path", path), logging.Error(err))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if scanCtx.Err() != nil {
			return scanCtx.Err()
		}
		if m.ingest(scanCtx, path) {
			found++
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		m.setLastError(err)
		logger.Error("discovery scan aborted", logging.Error(err))
		return
	}
	logger.Info("discovery scan finished", logging.Int("enqueued", found))
}

// ingest classifies one file and enqueues it. It reports whether the file
// entered the queue.
func (m *Manager) ingest(ctx context.Context, path string) bool {
	logger := logging.WithContext(ctx, m.logger)

	kind, meta, err := m.classifier.Classify(ctx, path)
	if err != nil {
		m.setLastError(err)
		logger.Warn("file dropped, classification failed",
			logging.String(logging.FieldItemPath, path), logging.Error(err))
		return false
	}
	if kind == media.KindIgnore {
		logger.Debug("file ignored", logging.String(logging.FieldItemPath, path))
		return false
	}
	if kind == media.KindSubtitle {
		// The video's move relocates same-stem subtitles as companions; a
		// standalone subtitle item would race it over the same file.
		if sibling, ok := classify.VideoSibling(path); ok {
			logger.Debug("subtitle travels with its video",
				logging.String(logging.FieldItemPath, path),
				logging.String("video", sibling))
			return false
		}
	}

	item := media.NewItem(path, kind, m.conversionSpec())
	item.Metadata = meta
	item.HomeMedia = m.cfg.Library.HomeMedia

	if _, err := m.queue.Enqueue(item); err != nil {
		if errors.Is(err, queue.ErrDuplicatePath) {
			logger.Debug("file already queued", logging.String(logging.FieldItemPath, path))
			return false
		}
		m.setLastError(err)
		logger.Warn("file not enqueued",
			logging.String(logging.FieldItemPath, path), logging.Error(err))
		return false
	}
	m.mu.Lock()
	m.drained = false
	m.mu.Unlock()
	logger.Info("file queued",
		logging.String(logging.FieldItemPath, path), logging.String("kind", string(kind)))
	return true
}

func (m *Manager) conversionSpec() media.ConversionSpec {
	if !m.cfg.Conversion.Enabled {
		return media.ConversionSpec{}
	}
	return media.ConversionSpec{
		Container:      m.cfg.Conversion.Container,
		VideoCodec:     m.cfg.Conversion.VideoCodec,
		AudioCodec:     m.cfg.Conversion.AudioCodec,
		MaxFrameRate:   m.cfg.Conversion.MaxFrameRate,
		DeleteOriginal: m.cfg.Conversion.DeleteOriginals,
	}
}
