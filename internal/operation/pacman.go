package operation

import (
	"context"
	"io"

	"github.com/driftless/driftless/internal/exec"
)

// PacmanOp is either a "sync package databases" or "install packages"
// operation, split the same way as AptOp.
type PacmanOp struct {
	Upgrade  bool
	Packages []string
}

func PacmanUpgrade() Operation {
	return Operation{Kind: KindPacman, Pacman: &PacmanOp{Upgrade: true}}
}

func PacmanInstall(packages []string) Operation {
	return Operation{Kind: KindPacman, Pacman: &PacmanOp{Packages: packages}}
}

func mergePacman(ops []Operation) []Operation {
	var upgrades []Operation
	var packages []string
	seen := make(map[string]bool)

	for _, op := range ops {
		if op.Pacman.Upgrade {
			upgrades = append(upgrades, op)
			continue
		}
		for _, pkg := range op.Pacman.Packages {
			if !seen[pkg] {
				seen[pkg] = true
				packages = append(packages, pkg)
			}
		}
	}

	out := upgrades
	if len(packages) > 0 {
		out = append(out, PacmanInstall(packages))
	}
	return out
}

func applyPacman(ctx context.Context, ex exec.Executor, op *PacmanOp, stdout, stderr io.Writer) (Result, error) {
	if op.Upgrade {
		return runAndStream(ctx, ex, exec.RunParams{
			Command: "pacman",
			Args:    []string{"-Sy", "--noconfirm"},
		}, stdout, stderr)
	}

	args := append([]string{"-S", "--noconfirm"}, op.Packages...)
	return runAndStream(ctx, ex, exec.RunParams{
		Command: "pacman",
		Args:    args,
	}, stdout, stderr)
}
