// Package organize implements the move and delete phase executors: routing
// finished files into the library tree and discarding pre-conversion
// originals.
package organize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"conveyor/internal/classify"
	"conveyor/internal/fileutil"
	"conveyor/internal/logging"
	"conveyor/internal/media"
	"conveyor/internal/pipeline"
	"conveyor/internal/services"
)

// Options describes the destination tree.
type Options struct {
	LibraryDir string
	MoviesDir  string
	MusicDir   string
	HomeDir    string
	Overwrite  bool
}

var titleCaser = cases.Title(language.Und)

// Mover relocates finished files into the library.
type Mover struct {
	opts   Options
	logger *slog.Logger
}

// NewMover constructs the move executor.
func NewMover(opts Options, logger *slog.Logger) *Mover {
	return &Mover{opts: opts, logger: logging.WithComponent(logger, "organize")}
}

// Move relocates the item's current file to its library destination and, for
// videos, brings subtitle companions along. A companion failure is reported
// through MoveResult without failing the move itself.
func (m *Mover) Move(ctx context.Context, item *media.Item) (pipeline.MoveResult, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.MoveResult{}, services.Wrap(services.ErrInterrupted, "moving", "", "", err)
	}
	if m.opts.LibraryDir == "" {
		return pipeline.MoveResult{}, services.Wrap(services.ErrConfiguration, "moving", "", "library directory not configured", nil)
	}

	destDir := m.destinationDir(item)
	dest := filepath.Join(destDir, filepath.Base(item.Path))
	if !m.opts.Overwrite && fileutil.PathExists(dest) {
		return pipeline.MoveResult{}, services.Wrap(services.ErrValidation, "moving", "", fmt.Sprintf("destination already exists: %s", dest), nil)
	}

	if err := fileutil.MoveFile(item.Path, dest); err != nil {
		return pipeline.MoveResult{}, services.Wrap(services.ErrExternalTool, "moving", "relocate", "", err)
	}
	m.logger.Info("file moved",
		logging.String(logging.FieldItemPath, item.Path),
		logging.String("destination", dest),
	)

	result := pipeline.MoveResult{FinalPath: dest}
	if item.Kind == media.KindVideo {
		result.SubtitleErr = m.moveCompanions(item, destDir)
	}
	return result, nil
}

// moveCompanions relocates subtitle files sharing the video's basename.
// Returns the first failure; remaining companions are still attempted.
func (m *Mover) moveCompanions(item *media.Item, destDir string) error {
	source := item.OriginalPath
	if source == "" {
		source = item.Path
	}
	sourceDir := filepath.Dir(source)
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))

	var firstErr error
	for _, ext := range classify.SubtitleExtensions() {
		companion := filepath.Join(sourceDir, base+ext)
		if !fileutil.PathExists(companion) {
			continue
		}
		dest := filepath.Join(destDir, filepath.Base(companion))
		if err := fileutil.MoveFile(companion, dest); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("subtitle companion %s: %w", companion, err)
			}
			continue
		}
		m.logger.Debug("subtitle companion moved", logging.String("subtitle", dest))
	}
	return firstErr
}

// destinationDir routes by the homeMedia flag first, then by kind. Videos
// get a per-title folder derived from the filename.
func (m *Mover) destinationDir(item *media.Item) string {
	if item.HomeMedia {
		return filepath.Join(m.opts.LibraryDir, m.opts.HomeDir)
	}
	switch item.Kind {
	case media.KindAudio:
		return filepath.Join(m.opts.LibraryDir, m.opts.MusicDir)
	case media.KindVideo:
		return filepath.Join(m.opts.LibraryDir, m.opts.MoviesDir, TitleFor(item))
	default:
		return filepath.Join(m.opts.LibraryDir, m.opts.MoviesDir)
	}
}

// TitleFor derives a display title from the item's original filename:
// separators become spaces and words are title-cased.
func TitleFor(item *media.Item) string {
	source := item.OriginalPath
	if source == "" {
		source = item.Path
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	base = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return "Unknown"
	}
	return titleCaser.String(base)
}

// Deleter discards original files after conversion and a successful move.
type Deleter struct {
	logger *slog.Logger
}

// NewDeleter constructs the delete executor.
func NewDeleter(logger *slog.Logger) *Deleter {
	return &Deleter{logger: logging.WithComponent(logger, "organize")}
}

// Delete removes the file at path. A path that is already gone counts as
// deleted.
func (d *Deleter) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrInterrupted, "deleting", "", "", err)
	}
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		d.logger.Debug("original removed", logging.String("path", path))
		return nil
	}
	return services.Wrap(services.ErrExternalTool, "deleting", "remove", "", err)
}
