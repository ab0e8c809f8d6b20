package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	WatchDir     string `toml:"watch_dir"`
	StagingDir   string `toml:"staging_dir"`
	LibraryDir   string `toml:"library_dir"`
	LogDir       string `toml:"log_dir"`
	SnapshotPath string `toml:"snapshot_path"`
	HistoryDB    string `toml:"history_db"`
	SocketPath   string `toml:"socket_path"`
}

// Conversion controls the transcoding phase and the task queue around it.
type Conversion struct {
	Enabled         bool    `toml:"enabled"`
	Container       string  `toml:"container"`
	VideoCodec      string  `toml:"video_codec"`
	AudioCodec      string  `toml:"audio_codec"`
	MaxFrameRate    float64 `toml:"max_framerate"`
	DeleteOriginals bool    `toml:"delete_originals"`
	MaxConcurrent   int     `toml:"max_concurrent"`
	Immediate       bool    `toml:"immediate"`
	WindowStart     string  `toml:"window_start"`
	WindowStop      string  `toml:"window_stop"`
	FFmpegBinary    string  `toml:"ffmpeg_binary"`
	FFprobeBinary   string  `toml:"ffprobe_binary"`
}

// Library describes the destination tree inside the library directory.
type Library struct {
	MoviesDir         string `toml:"movies_dir"`
	MusicDir          string `toml:"music_dir"`
	HomeDir           string `toml:"home_dir"`
	HomeMedia         bool   `toml:"home_media"`
	OverwriteExisting bool   `toml:"overwrite_existing"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
	QueueDrained   bool   `toml:"queue_drained"`
}

// Workflow contains daemon timing configuration.
type Workflow struct {
	SettleSeconds    int `toml:"settle_seconds"`
	MinFreeSpaceGiB  int `toml:"min_free_space_gib"`
	ShutdownTimeout  int `toml:"shutdown_timeout"`
	NotifyTimeoutSec int `toml:"notify_timeout_seconds"`
}

// Logging controls log output.
type Logging struct {
	Level         string `toml:"level"`
	Format        string `toml:"format"`
	RetentionDays int    `toml:"retention_days"`
}

// Config is the root configuration document.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Conversion    Conversion    `toml:"conversion"`
	Library       Library       `toml:"library"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the expected location of the config file.
func DefaultConfigPath() string {
	return filepath.Join("~", ".config", "conveyor", "config.toml")
}

// Load reads the configuration at path (or the default location when path is
// empty), applies defaults for absent keys, normalizes paths, and validates
// the result. A missing file yields the defaults. The resolved path is
// returned alongside the config.
func Load(path string) (*Config, string, error) {
	resolved := path
	if resolved == "" {
		resolved = DefaultConfigPath()
	}
	expanded, err := ExpandPath(resolved)
	if err != nil {
		return nil, "", fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(expanded)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", fmt.Errorf("parse config %s: %w", expanded, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Defaults apply.
	default:
		return nil, "", fmt.Errorf("read config %s: %w", expanded, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, expanded, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LibraryDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
