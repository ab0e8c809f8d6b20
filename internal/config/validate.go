package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownContainers = map[string]struct{}{
	"mkv": {}, "mp4": {}, "webm": {}, "mov": {},
	"mka": {}, "m4a": {}, "ogg": {}, "flac": {}, "mp3": {}, "opus": {},
}

// Validate checks the configuration for operator mistakes. It accumulates
// every problem it finds so a broken file is reported in one pass.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.WatchDir == "" {
		problems = append(problems, "paths.watch_dir is required")
	}
	if c.Paths.LibraryDir == "" {
		problems = append(problems, "paths.library_dir is required")
	}
	if c.Paths.WatchDir != "" && c.Paths.WatchDir == c.Paths.LibraryDir {
		problems = append(problems, "paths.watch_dir and paths.library_dir must differ")
	}

	if c.Conversion.Enabled {
		if c.Paths.StagingDir == "" {
			problems = append(problems, "paths.staging_dir is required when conversion is enabled")
		}
		if c.Conversion.Container == "" {
			problems = append(problems, "conversion.container is required")
		} else if _, ok := knownContainers[c.Conversion.Container]; !ok {
			problems = append(problems, fmt.Sprintf("conversion.container %q is not a supported container", c.Conversion.Container))
		}
		if c.Conversion.MaxFrameRate < 0 {
			problems = append(problems, "conversion.max_framerate must not be negative")
		}
		if !c.Conversion.Immediate {
			if c.Conversion.WindowStart == "" {
				problems = append(problems, "conversion.window_start is required unless conversion.immediate is set")
			}
			if c.Conversion.WindowStop == "" {
				problems = append(problems, "conversion.window_stop is required unless conversion.immediate is set")
			}
		}
	}

	if c.Library.MoviesDir == "" {
		problems = append(problems, "library.movies_dir is required")
	}
	if c.Library.MusicDir == "" {
		problems = append(problems, "library.music_dir is required")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
}
