package operation

import (
	"context"
	"io"

	"github.com/driftless/driftless/internal/exec"
)

// CommandOp runs one shell command line as the lowered form of a command
// resource's install/uninstall change.
type CommandOp struct {
	Command string
}

func RunCommand(command string) Operation {
	return Operation{Kind: KindCommand, Command: &CommandOp{Command: command}}
}

func applyCommand(ctx context.Context, ex exec.Executor, op *CommandOp, stdout, stderr io.Writer) (Result, error) {
	return runAndStream(ctx, ex, exec.RunParams{
		Command: "/bin/sh",
		Args:    []string{"-c", op.Command},
	}, stdout, stderr)
}
