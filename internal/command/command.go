// Package command runs the external test harness behind an interface so the
// tuner can be driven without a build tree.
package command

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
)

// Executor runs one prepared command.
type Executor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)
}

// Builder prepares commands rooted in a working directory.
type Builder interface {
	// Command prepares name with args, run from dir.
	Command(ctx context.Context, dir, name string, args ...string) Executor

	// Shell prepares a command line run through sh -c from dir.
	Shell(ctx context.Context, dir, line string) Executor
}

// ExitCode extracts the process exit status from an error returned by Run.
// It returns 0 for a nil error and -1 when the process never ran or the
// status is unknown.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	var mockErr *ExitError
	if errors.As(err, &mockErr) {
		return mockErr.Code
	}
	return -1
}

// ExitError is a synthetic non-zero exit, used by MockExecutor.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}

// OSExecutor wraps exec.Cmd.
type OSExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *OSExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// OSBuilder implements Builder using exec.CommandContext.
type OSBuilder struct{}

// NewOSBuilder creates a new OSBuilder.
func NewOSBuilder() *OSBuilder {
	return &OSBuilder{}
}

func (b *OSBuilder) Command(ctx context.Context, dir, name string, args ...string) Executor {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return &OSExecutor{cmd: cmd}
}

func (b *OSBuilder) Shell(ctx context.Context, dir, line string) Executor {
	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	cmd.Dir = dir
	return &OSExecutor{cmd: cmd}
}
