// Package convert implements the conversion phase executor on top of the
// ffmpeg binary.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/media"
	"conveyor/internal/services"
)

// codecNameByEncoder maps the encoder we would invoke to the codec name
// ffprobe reports, so already-compatible files skip the transcode.
var codecNameByEncoder = map[string]string{
	"libx264":    "h264",
	"libx265":    "hevc",
	"libaom-av1": "av1",
	"libsvtav1":  "av1",
	"libvpx-vp9": "vp9",
	"aac":        "aac",
	"libopus":    "opus",
	"libmp3lame": "mp3",
	"flac":       "flac",
}

// containerAliases maps ffprobe container names to the extension form used
// in configuration.
var containerAliases = map[string]string{
	"matroska": "mkv",
	"mov":      "mp4",
}

// FFmpeg runs transcodes into the staging directory.
type FFmpeg struct {
	binary     string
	stagingDir string
	logger     *slog.Logger
}

// New constructs the executor. The staging directory is created lazily on
// first conversion.
func New(binary, stagingDir string, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		binary:     binary,
		stagingDir: stagingDir,
		logger:     logging.WithComponent(logger, "convert"),
	}
}

// Convert transcodes the item into the staging directory and returns the
// staged path. When the file already matches the target container and
// codec it returns the item's own path untouched.
func (f *FFmpeg) Convert(ctx context.Context, item *media.Item) (string, error) {
	if alreadyCompatible(item) {
		f.logger.Debug("already compatible, skipping transcode",
			logging.String(logging.FieldItemPath, item.Path))
		return item.Path, nil
	}

	if err := os.MkdirAll(f.stagingDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "converting", "staging", "", err)
	}
	outPath := f.stagedPath(item)
	args := buildArgs(item, outPath)

	started := time.Now()
	f.logger.Info("transcode started",
		logging.String(logging.FieldItemPath, item.Path),
		logging.String("target", outPath),
	)

	cmd := exec.CommandContext(ctx, f.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outPath)
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrInterrupted, "converting", "ffmpeg", "transcode interrupted", ctx.Err())
		}
		detail := lastLine(string(output))
		return "", services.Wrap(services.ErrExternalTool, "converting", "ffmpeg", detail, err)
	}

	f.logger.Info("transcode finished",
		logging.String(logging.FieldItemPath, item.Path),
		logging.Duration("elapsed", time.Since(started)),
	)
	return outPath, nil
}

// stagedPath keeps the source basename with the target container
// extension. A numeric suffix avoids collisions between same-named drops.
func (f *FFmpeg) stagedPath(item *media.Item) string {
	base := strings.TrimSuffix(filepath.Base(item.Path), filepath.Ext(item.Path))
	candidate := filepath.Join(f.stagingDir, base+"."+item.Conversion.Container)
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
		candidate = filepath.Join(f.stagingDir, fmt.Sprintf("%s-%d.%s", base, i, item.Conversion.Container))
	}
}

// buildArgs assembles the ffmpeg invocation for one item.
func buildArgs(item *media.Item, outPath string) []string {
	spec := item.Conversion
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", item.Path}

	if item.Kind == media.KindAudio {
		args = append(args, "-vn")
		if spec.AudioCodec != "" {
			args = append(args, "-c:a", spec.AudioCodec)
		}
		args = append(args, outPath)
		return args
	}

	if spec.MaxFrameRate > 0 && sourceFrameRate(item) > spec.MaxFrameRate {
		args = append(args, "-r", formatFrameRate(spec.MaxFrameRate))
	}
	if spec.VideoCodec != "" {
		args = append(args, "-c:v", spec.VideoCodec)
	}
	if spec.AudioCodec != "" {
		args = append(args, "-c:a", spec.AudioCodec)
	}
	args = append(args, "-map", "0", "-c:s", "copy", outPath)
	return args
}

func sourceFrameRate(item *media.Item) float64 {
	if item.Metadata == nil {
		// Unknown source rate: treat as above any ceiling so the clamp applies.
		return float64(1<<31 - 1)
	}
	return item.Metadata.FrameRate
}

func formatFrameRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

// alreadyCompatible reports whether the source container and codecs match
// the conversion target, making a transcode pointless.
func alreadyCompatible(item *media.Item) bool {
	meta := item.Metadata
	spec := item.Conversion
	if meta == nil {
		return false
	}
	container := strings.ToLower(meta.Container)
	if alias, ok := containerAliases[container]; ok {
		container = alias
	}
	if container != spec.Container {
		return false
	}
	if spec.MaxFrameRate > 0 && meta.FrameRate > spec.MaxFrameRate {
		return false
	}
	if item.Kind == media.KindAudio {
		return codecMatches(spec.AudioCodec, meta.AudioCodec)
	}
	if !codecMatches(spec.VideoCodec, meta.VideoCodec) {
		return false
	}
	return meta.AudioCodec == "" || codecMatches(spec.AudioCodec, meta.AudioCodec)
}

func codecMatches(encoder, probed string) bool {
	if encoder == "" {
		return true
	}
	want, ok := codecNameByEncoder[strings.ToLower(encoder)]
	if !ok {
		want = strings.ToLower(encoder)
	}
	return strings.EqualFold(want, probed)
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
