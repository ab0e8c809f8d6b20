package config

const (
	defaultWatchDir        = "~/drop"
	defaultStagingDir      = "~/.local/share/conveyor/staging"
	defaultLibraryDir      = "~/library"
	defaultLogDir          = "~/.local/share/conveyor/logs"
	defaultSnapshotPath    = "~/.local/share/conveyor/queue.json"
	defaultHistoryDB       = "~/.local/share/conveyor/history.db"
	defaultContainer       = "mkv"
	defaultVideoCodec      = "libx265"
	defaultAudioCodec      = "aac"
	defaultMaxConcurrent   = 2
	defaultWindowStart     = "0 1 * * *"
	defaultWindowStop      = "0 7 * * *"
	defaultFFmpegBinary    = "ffmpeg"
	defaultFFprobeBinary   = "ffprobe"
	defaultMoviesDir       = "movies"
	defaultMusicDir        = "music"
	defaultHomeDir         = "home"
	defaultNtfyTimeout     = 10
	defaultSettleSeconds   = 5
	defaultMinFreeGiB      = 10
	defaultShutdownTimeout = 30
	defaultLogLevel        = "info"
	defaultLogFormat       = "console"
	defaultLogRetention    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:     defaultWatchDir,
			StagingDir:   defaultStagingDir,
			LibraryDir:   defaultLibraryDir,
			LogDir:       defaultLogDir,
			SnapshotPath: defaultSnapshotPath,
			HistoryDB:    defaultHistoryDB,
		},
		Conversion: Conversion{
			Enabled:       true,
			Container:     defaultContainer,
			VideoCodec:    defaultVideoCodec,
			AudioCodec:    defaultAudioCodec,
			MaxConcurrent: defaultMaxConcurrent,
			WindowStart:   defaultWindowStart,
			WindowStop:    defaultWindowStop,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Library: Library{
			MoviesDir: defaultMoviesDir,
			MusicDir:  defaultMusicDir,
			HomeDir:   defaultHomeDir,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Completion:     true,
			Errors:         true,
			QueueDrained:   true,
		},
		Workflow: Workflow{
			SettleSeconds:   defaultSettleSeconds,
			MinFreeSpaceGiB: defaultMinFreeGiB,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: Logging{
			Level:         defaultLogLevel,
			Format:        defaultLogFormat,
			RetentionDays: defaultLogRetention,
		},
	}
}
