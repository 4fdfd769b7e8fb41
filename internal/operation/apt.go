package operation

import (
	"context"
	"io"

	"github.com/driftless/driftless/internal/exec"
)

// AptOp is either an "update package index" or an "install packages"
// operation; the two are always lowered as separate operations so that
// Update can be scheduled before Install via causality (see
// internal/registry's apt kind).
type AptOp struct {
	Update   bool
	Packages []string
}

func AptUpdate() Operation {
	return Operation{Kind: KindApt, Apt: &AptOp{Update: true}}
}

func AptInstall(packages []string) Operation {
	return Operation{Kind: KindApt, Apt: &AptOp{Packages: packages}}
}

// mergeApt coalesces multiple install operations into one apt-get install
// invocation carrying the union of their package lists; update operations
// pass through unmerged (there is only ever one per epoch in practice).
func mergeApt(ops []Operation) []Operation {
	var updates []Operation
	var packages []string
	seen := make(map[string]bool)

	for _, op := range ops {
		if op.Apt.Update {
			updates = append(updates, op)
			continue
		}
		for _, pkg := range op.Apt.Packages {
			if !seen[pkg] {
				seen[pkg] = true
				packages = append(packages, pkg)
			}
		}
	}

	out := updates
	if len(packages) > 0 {
		out = append(out, AptInstall(packages))
	}
	return out
}

func applyApt(ctx context.Context, ex exec.Executor, op *AptOp, stdout, stderr io.Writer) (Result, error) {
	if op.Update {
		return runAndStream(ctx, ex, exec.RunParams{
			Command: "apt-get",
			Args:    []string{"update"},
		}, stdout, stderr)
	}

	args := append([]string{"install", "-y"}, op.Packages...)
	return runAndStream(ctx, ex, exec.RunParams{
		Command: "apt-get",
		Args:    args,
		Env:     map[string]string{"DEBIAN_FRONTEND": "noninteractive"},
	}, stdout, stderr)
}
