package command

import (
	"context"
	"strings"
)

// MockExecutor implements Executor for testing.
type MockExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// Effect, when set, runs before Run returns. Tests use it to drop the
	// files a real harness invocation would leave behind.
	Effect func()
	// RunCalled indicates whether Run was called.
	RunCalled bool
}

// Run returns the configured output and error.
func (m *MockExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	if m.Effect != nil {
		m.Effect()
	}
	return m.Output, m.Err
}

// BuiltCommand records details of a command prepared by MockBuilder.
type BuiltCommand struct {
	Dir     string
	Name    string
	Args    []string
	IsShell bool
}

// Line joins the command name and arguments with spaces.
func (c BuiltCommand) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// MockBuilder implements Builder for testing.
type MockBuilder struct {
	// Commands records all commands that were built.
	Commands []BuiltCommand
	// ExecutorFactory allows creating executors dynamically based on command.
	// If nil, every command succeeds with no output.
	ExecutorFactory func(cmd BuiltCommand) *MockExecutor
}

// NewMockBuilder creates a new MockBuilder.
func NewMockBuilder() *MockBuilder {
	return &MockBuilder{}
}

func (b *MockBuilder) Command(ctx context.Context, dir, name string, args ...string) Executor {
	return b.record(BuiltCommand{Dir: dir, Name: name, Args: args})
}

func (b *MockBuilder) Shell(ctx context.Context, dir, line string) Executor {
	return b.record(BuiltCommand{Dir: dir, Name: "sh", Args: []string{"-c", line}, IsShell: true})
}

func (b *MockBuilder) record(cmd BuiltCommand) *MockExecutor {
	b.Commands = append(b.Commands, cmd)
	if b.ExecutorFactory != nil {
		if exec := b.ExecutorFactory(cmd); exec != nil {
			return exec
		}
	}
	return &MockExecutor{}
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockBuilder) LastCommand() *BuiltCommand {
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}

// Lines returns every recorded command as a single string, in build order.
func (b *MockBuilder) Lines() []string {
	lines := make([]string, len(b.Commands))
	for i, c := range b.Commands {
		lines[i] = c.Line()
	}
	return lines
}

// Reset clears all recorded commands.
func (b *MockBuilder) Reset() {
	b.Commands = nil
}
