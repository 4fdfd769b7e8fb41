package operation

import (
	"context"
	"io"

	"github.com/driftless/driftless/internal/exec"
)

// GitOp is one git repository mutation. OpKind selects the variant; only the
// fields that variant uses are meaningful.
type GitOp struct {
	OpKind GitOpKind

	Repo    string
	Path    string
	Version string
	Force   bool
}

// GitOpKind discriminates the GitOp variants.
type GitOpKind string

const (
	GitOpClone    GitOpKind = "clone"
	GitOpFetch    GitOpKind = "fetch"
	GitOpCheckout GitOpKind = "checkout"
	GitOpPull     GitOpKind = "pull"
)

func GitClone(repo, path string) Operation {
	return Operation{Kind: KindGit, Git: &GitOp{OpKind: GitOpClone, Repo: repo, Path: path}}
}

func GitFetch(path string) Operation {
	return Operation{Kind: KindGit, Git: &GitOp{OpKind: GitOpFetch, Path: path}}
}

func GitCheckout(path, version string, force bool) Operation {
	return Operation{Kind: KindGit, Git: &GitOp{OpKind: GitOpCheckout, Path: path, Version: version, Force: force}}
}

func GitPull(path string) Operation {
	return Operation{Kind: KindGit, Git: &GitOp{OpKind: GitOpPull, Path: path}}
}

func applyGit(ctx context.Context, ex exec.Executor, op *GitOp, stdout, stderr io.Writer) (Result, error) {
	switch op.OpKind {
	case GitOpClone:
		return runAndStream(ctx, ex, exec.RunParams{
			Command: "git",
			Args:    []string{"clone", op.Repo, op.Path},
		}, stdout, stderr)
	case GitOpFetch:
		return runAndStream(ctx, ex, exec.RunParams{
			Command: "git",
			Args:    []string{"-C", op.Path, "fetch"},
		}, stdout, stderr)
	case GitOpCheckout:
		args := []string{"-C", op.Path, "checkout"}
		if op.Force {
			args = append(args, "--force")
		}
		args = append(args, op.Version)
		return runAndStream(ctx, ex, exec.RunParams{
			Command: "git",
			Args:    args,
		}, stdout, stderr)
	case GitOpPull:
		return runAndStream(ctx, ex, exec.RunParams{
			Command: "git",
			Args:    []string{"-C", op.Path, "pull"},
		}, stdout, stderr)
	default:
		return Result{}, nil
	}
}
