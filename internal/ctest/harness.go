package ctest

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chkao831/Autotuning/internal/command"
	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/monitoring"
)

// RunError is a harness invocation that exited non-zero. It marks the
// experiment as failed without stopping the sweep.
type RunError struct {
	Line     string
	ExitCode int
	Output   string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Line, e.ExitCode)
}

func (e *RunError) Unwrap() error { return e.Err }

// Harness runs labelled ctest cases from a build directory.
type Harness struct {
	Builder command.Builder
	FS      fsutil.FileSystem
	Dir     string

	// Command is the ctest executable.
	Command string
	// Label selects the tuning case.
	Label   string
	Timeout time.Duration

	// SetupLabel, when set, is run once if SetupMarker is missing from Dir.
	SetupLabel  string
	SetupMarker string

	// LastLog is the log ctest leaves behind, relative to Dir.
	LastLog string
	// ConvertCommand turns the copied logs into reports. Run through sh.
	ConvertCommand string

	Artifacts Artifacts
}

// EnsureSetup runs the setup label unless its marker already exists.
func (h *Harness) EnsureSetup(ctx context.Context) error {
	if h.SetupLabel == "" {
		return nil
	}
	if h.SetupMarker != "" && h.FS.Exists(filepath.Join(h.Dir, h.SetupMarker)) {
		monitoring.Logf("%s already exists, skipping setup", h.SetupMarker)
		return nil
	}
	return h.run(h.Builder.Command(ctx, h.Dir, h.Command, "-L", h.SetupLabel), h.Command, "-L", h.SetupLabel)
}

// RunExperiment runs the tuning label once against the deck currently on
// disk at deckPath, then preserves the deck and the ctest log under the
// names Artifacts assigns to id. The harness error takes precedence over a
// missing log.
func (h *Harness) RunExperiment(ctx context.Context, id, round int, deckPath string) error {
	if err := h.EnsureSetup(ctx); err != nil {
		monitoring.Warnf("setup: %v", err)
	}

	args := []string{"-L", h.Label}
	if h.Timeout > 0 {
		// ctest reads --timeout 0 as no limit
		secs := max(1, int(h.Timeout.Round(time.Second)/time.Second))
		args = append(args, "--timeout", strconv.Itoa(secs))
	}
	runErr := h.run(h.Builder.Command(ctx, h.Dir, h.Command, args...), append([]string{h.Command}, args...)...)

	if err := fsutil.Copy(h.FS, deckPath, h.Artifacts.DeckCopyPath(id)); err != nil {
		return fmt.Errorf("experiment %d: %w", id, err)
	}
	if h.LastLog != "" {
		if err := fsutil.Copy(h.FS, filepath.Join(h.Dir, h.LastLog), h.Artifacts.LogPath(id, round)); err != nil {
			if runErr != nil {
				return runErr
			}
			return fmt.Errorf("experiment %d: %w", id, err)
		}
	}
	return runErr
}

// Convert runs the log-to-report conversion.
func (h *Harness) Convert(ctx context.Context) error {
	if h.ConvertCommand == "" {
		return nil
	}
	return h.run(h.Builder.Shell(ctx, h.Dir, h.ConvertCommand), h.ConvertCommand)
}

func (h *Harness) run(exec command.Executor, argv ...string) error {
	line := strings.Join(argv, " ")
	monitoring.Logf("running %s", line)
	out, err := exec.Run()
	if err == nil {
		return nil
	}
	return &RunError{Line: line, ExitCode: command.ExitCode(err), Output: string(out), Err: err}
}
