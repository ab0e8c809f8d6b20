// Package classify maps discovered files to a media kind and, for
// convertible kinds, attaches technical metadata probed with ffprobe.
package classify

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"conveyor/internal/ffprobe"
	"conveyor/internal/media"
	"conveyor/internal/services"
)

var kindByExtension = map[string]media.Kind{
	".mkv": media.KindVideo, ".mp4": media.KindVideo, ".avi": media.KindVideo,
	".m4v": media.KindVideo, ".mov": media.KindVideo, ".wmv": media.KindVideo,
	".flv": media.KindVideo, ".webm": media.KindVideo, ".ts": media.KindVideo,
	".mpg": media.KindVideo, ".mpeg": media.KindVideo,

	".mp3": media.KindAudio, ".flac": media.KindAudio, ".aac": media.KindAudio,
	".m4a": media.KindAudio, ".ogg": media.KindAudio, ".wav": media.KindAudio,
	".wma": media.KindAudio, ".opus": media.KindAudio,

	".srt": media.KindSubtitle, ".sub": media.KindSubtitle, ".ass": media.KindSubtitle,
	".ssa": media.KindSubtitle, ".vtt": media.KindSubtitle, ".idx": media.KindSubtitle,
}

// KindForPath returns the media kind implied by the file extension alone.
// Unrecognized extensions classify as ignore.
func KindForPath(path string) media.Kind {
	ext := strings.ToLower(filepath.Ext(path))
	if kind, ok := kindByExtension[ext]; ok {
		return kind
	}
	return media.KindIgnore
}

// SubtitleExtensions returns the recognized subtitle file extensions,
// including the leading dot.
func SubtitleExtensions() []string {
	var exts []string
	for ext, kind := range kindByExtension {
		if kind == media.KindSubtitle {
			exts = append(exts, ext)
		}
	}
	return exts
}

// VideoSibling returns a video file sharing path's directory and basename
// stem, if one exists. A subtitle with a video sibling travels with that
// video's move instead of being processed on its own.
func VideoSibling(path string) (string, bool) {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	for ext, kind := range kindByExtension {
		if kind != media.KindVideo {
			continue
		}
		candidate := stem + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// ProbeFunc inspects a file and returns its technical metadata. The
// production implementation shells out to ffprobe; tests substitute a stub.
type ProbeFunc func(ctx context.Context, path string) (*media.Metadata, error)

// Classifier tags paths with a kind and probes convertible files.
type Classifier struct {
	probe ProbeFunc
}

// New builds a classifier probing with the given ffprobe binary.
func New(ffprobeBinary string) *Classifier {
	return &Classifier{probe: func(ctx context.Context, path string) (*media.Metadata, error) {
		result, err := ffprobe.Inspect(ctx, ffprobeBinary, path)
		if err != nil {
			return nil, err
		}
		meta := &media.Metadata{
			DurationSeconds: result.DurationSeconds(),
			Container:       result.Container(),
		}
		if video := result.FirstStream("video"); video != nil {
			meta.VideoCodec = video.CodecName
			meta.Width = video.Width
			meta.Height = video.Height
			meta.FrameRate = video.FrameRate()
		}
		if audio := result.FirstStream("audio"); audio != nil {
			meta.AudioCodec = audio.CodecName
		}
		return meta, nil
	}}
}

// NewWithProbe builds a classifier around a custom probe, used in tests.
func NewWithProbe(probe ProbeFunc) *Classifier {
	return &Classifier{probe: probe}
}

// Classify returns the kind for path and, for convertible kinds, the probed
// metadata. A probe failure on a convertible file is a classification
// error: the caller drops the item from the current discovery pass.
func (c *Classifier) Classify(ctx context.Context, path string) (media.Kind, *media.Metadata, error) {
	kind := KindForPath(path)
	if !kind.Convertible() || c.probe == nil {
		return kind, nil, nil
	}
	meta, err := c.probe(ctx, path)
	if err != nil {
		return kind, nil, services.Wrap(services.ErrExternalTool, "classify", "probe", path, err)
	}
	return kind, meta, nil
}
