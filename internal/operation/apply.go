package operation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/driftless/driftless/internal/exec"
)

// Result is the outcome of applying one operation: an exit status and,
// for command-backed operations, whatever code that command returned.
type Result struct {
	ExitCode int
}

// Succeeded reports whether the operation completed without error.
func (r Result) Succeeded() bool { return r.ExitCode == 0 }

// Apply executes one operation against ex, line-streaming its stdout/stderr
// to the given writers as it completes (internal/exec.Executor.Run captures
// output fully rather than incrementally, so streaming here means writing
// each captured line in turn — see internal/exec's grounding note).
func Apply(ctx context.Context, ex exec.Executor, op Operation, stdout, stderr io.Writer) (Result, error) {
	switch op.Kind {
	case KindGroup:
		return Result{ExitCode: 0}, nil
	case KindApt:
		return applyApt(ctx, ex, op.Apt, stdout, stderr)
	case KindPacman:
		return applyPacman(ctx, ex, op.Pacman, stdout, stderr)
	case KindFile:
		return applyFile(ctx, ex, op.File, stdout, stderr)
	case KindCommand:
		return applyCommand(ctx, ex, op.Command, stdout, stderr)
	case KindGit:
		return applyGit(ctx, ex, op.Git, stdout, stderr)
	case KindService:
		return applyService(ctx, ex, op.Service, stdout, stderr)
	case KindExtension:
		return Result{}, fmt.Errorf("operation: extension operation for %q must be applied via its owning extpoint.Provider, not operation.Apply", op.Extension.Module)
	default:
		return Result{}, fmt.Errorf("operation: unknown kind %q", op.Kind)
	}
}

func runAndStream(ctx context.Context, ex exec.Executor, params exec.RunParams, stdout, stderr io.Writer) (Result, error) {
	result, err := ex.Run(ctx, params)
	if err != nil {
		return Result{}, err
	}
	streamLines(stdout, result.Stdout)
	streamLines(stderr, result.Stderr)
	return Result{ExitCode: result.ExitCode}, nil
}

func streamLines(w io.Writer, text string) {
	if w == nil || text == "" {
		return
	}
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
}
