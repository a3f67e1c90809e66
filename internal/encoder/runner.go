package encoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// CommandRunner abstracts subprocess execution so tests can substitute a
// fake and assert on the exact invocations without an ffmpeg binary.
type CommandRunner interface {
	// Run executes the command, feeding stdin when non-nil.
	Run(ctx context.Context, name string, args []string, stdin io.Reader) error
	// Output executes the command and returns its stdout.
	Output(ctx context.Context, name string, args []string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func (execRunner) Output(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return output, nil
}
