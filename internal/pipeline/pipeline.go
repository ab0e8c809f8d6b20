// Package pipeline defines the narrow executor interfaces wrapping the
// external transcode/move/delete tools, and drives a single item through
// its phases under state-machine control.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"conveyor/internal/logging"
	"conveyor/internal/media"
	"conveyor/internal/services"
)

// Converter runs the external transcoder for one item. On success the
// returned path points at the converted file in the staging area; a
// converter may return the item's own path to signal that no transcode was
// necessary.
type Converter interface {
	Convert(ctx context.Context, item *media.Item) (string, error)
}

// MoveResult reports where a file landed. SubtitleErr carries a companion
// subtitle that could not be moved without failing the item itself.
type MoveResult struct {
	FinalPath   string
	SubtitleErr error
}

// Mover relocates an item's current file into the library tree.
type Mover interface {
	Move(ctx context.Context, item *media.Item) (MoveResult, error)
}

// Deleter discards the pre-conversion original after a successful move.
type Deleter interface {
	Delete(ctx context.Context, path string) error
}

// Executors bundles the three phase executors a queue worker drives.
type Executors struct {
	Converter Converter
	Mover     Mover
	Deleter   Deleter
}

// Run drives one item from dispatch to a terminal status. It never returns
// an error: every failure is caught here, tagged with the phase that
// produced it, and recorded on the item. Cancellation of ctx surfaces as a
// failure of whichever phase was running.
func Run(ctx context.Context, execs Executors, item *media.Item, logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldItemPath, item.Path))

	item.Status = media.Dispatch(item.Kind)
	if item.Status == media.StatusFailed {
		item.MarkFailed(media.PhaseConverting, fmt.Errorf("kind %q has no pipeline phase", item.Kind))
		logger.Warn("item not dispatchable", logging.String("kind", string(item.Kind)))
		return
	}

	if item.Status == media.StatusConverting {
		if !runConversion(ctx, execs, item, logger) {
			return
		}
	}

	if !runMove(ctx, execs, item, logger) {
		return
	}

	if item.Conversion.DeleteOriginal && item.OriginalPath != "" {
		if !runDelete(ctx, execs, item, logger) {
			return
		}
	}

	item.Status = media.StatusSucceeded
	logger.Info("item completed", logging.String("final_path", item.FinalPath))
}

func runConversion(ctx context.Context, execs Executors, item *media.Item, logger *slog.Logger) bool {
	phaseCtx := services.WithPhase(ctx, string(media.PhaseConverting))
	newPath, err := execs.Converter.Convert(phaseCtx, item)
	if err != nil {
		item.MarkFailed(media.PhaseConverting, err)
		logger.Warn("conversion failed", logging.Error(err))
		return false
	}
	item.Status = media.Next(item.Status, media.PhaseConverting, media.OutcomeSuccess)
	if newPath != "" && newPath != item.Path {
		item.OriginalPath = item.Path
		item.Path = newPath
	}
	return item.Status == media.StatusMoving
}

func runMove(ctx context.Context, execs Executors, item *media.Item, logger *slog.Logger) bool {
	item.Status = media.PhaseStatus(media.PhaseMoving)
	phaseCtx := services.WithPhase(ctx, string(media.PhaseMoving))
	result, err := execs.Mover.Move(phaseCtx, item)
	if err != nil {
		item.MarkFailed(media.PhaseMoving, err)
		logger.Warn("move failed", logging.Error(err))
		return false
	}
	if result.SubtitleErr != nil {
		item.SubtitleError = result.SubtitleErr.Error()
		logger.Warn("subtitle companion not moved", logging.Error(result.SubtitleErr))
	}
	item.FinalPath = result.FinalPath
	item.Status = media.Next(item.Status, media.PhaseMoving, media.OutcomeSuccess)
	return item.Status == media.StatusSucceeded
}

func runDelete(ctx context.Context, execs Executors, item *media.Item, logger *slog.Logger) bool {
	item.Status = media.PhaseStatus(media.PhaseDeleting)
	phaseCtx := services.WithPhase(ctx, string(media.PhaseDeleting))
	if err := execs.Deleter.Delete(phaseCtx, item.OriginalPath); err != nil {
		// The file reached the library; only the original lingers.
		item.MarkFailed(media.PhaseDeleting, err)
		logger.Warn("original not deleted", logging.Error(err), logging.String("original", item.OriginalPath))
		return false
	}
	item.Status = media.Next(item.Status, media.PhaseDeleting, media.OutcomeSuccess)
	return item.Status == media.StatusSucceeded
}
