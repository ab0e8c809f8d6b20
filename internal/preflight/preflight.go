// Package preflight runs startup environment checks: directory access,
// free space, and the external binaries the enabled features need.
package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"conveyor/internal/config"
	"conveyor/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for the given config. These
// checks inform, they never abort: only a missing required binary (see
// CheckSystemDeps and deps.FatalMissing) stops the daemon.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Watch directory", cfg.Paths.WatchDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir),
	}
	if cfg.Workflow.MinFreeSpaceGiB > 0 {
		results = append(results, CheckFreeSpace(cfg.Paths.StagingDir, cfg.Workflow.MinFreeSpaceGiB))
	}
	return results
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable, writable, and traversable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least
// minGiB gibibytes available. Transcodes stage a full copy, so running
// the staging volume dry mid-conversion is the common failure.
func CheckFreeSpace(path string, minGiB int) Result {
	const name = "Free space"
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	freeGiB := float64(stat.Bavail) * float64(stat.Bsize) / (1 << 30)
	detail := fmt.Sprintf("%s (%.1f GiB free, %d GiB required)", path, freeGiB, minGiB)
	if freeGiB < float64(minGiB) {
		return Result{Name: name, Detail: detail}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external binaries the configuration
// needs. Both the daemon and the CLI status command use this so the
// requirements list lives in one place.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFprobe",
			Command:     cfg.Conversion.FFprobeBinary,
			Description: "Required for media inspection",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Conversion.FFmpegBinary,
			Description: "Required for conversion",
			Optional:    !cfg.Conversion.Enabled,
		},
	}
	return deps.CheckBinaries(requirements)
}
