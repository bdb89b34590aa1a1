package encoder

import (
	"context"
	"os/exec"
)

// Runner abstracts external command execution so tests can substitute a fake
// ffmpeg without spawning processes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandRunner runs real commands via os/exec.
type CommandRunner struct{}

// NewCommandRunner constructs a CommandRunner.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run executes the command under ctx and returns its combined output.
func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}
