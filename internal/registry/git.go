package registry

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/span"
	"github.com/driftless/driftless/internal/tree"
)

// GitResource checks out a repository at a path, optionally pinned to a
// version and kept up to date.
type GitResource struct {
	Repo    string
	Path    string
	Version string // empty means "whatever branch is checked out"
	Update  bool
	Force   bool
}

// GitState is whether a git working tree exists at Path and, if so, its head.
type GitState struct {
	Absent   bool
	Head     string
	Branch   string
	IsDirty  bool
}

// GitChangeKind discriminates the GitChange variants.
type GitChangeKind string

const (
	GitChangeClone    GitChangeKind = "clone"
	GitChangeCheckout GitChangeKind = "checkout"
	GitChangePull     GitChangeKind = "pull"
)

// GitChange is the pure diff result for a GitResource.
type GitChange struct {
	ChangeKind GitChangeKind
	Repo       string
	Path       string
	Version    string
	Force      bool
	Fetch      bool
}

// Git is the @core/git resource kind: clone a repository, or check out a
// version / pull an existing one, grounded on
// original_source/resource/src/resources/git.rs.
type Git struct{}

var _ ResourceType = (*Git)(nil)

func (Git) Module() string { return "@core/git" }

func (Git) Schema() span.Spanned[paramschema.ParamType] {
	pt := paramschema.Struct(
		paramschema.Field{Name: "repo", Type: paramschema.String()},
		paramschema.Field{Name: "path", Type: paramschema.TargetPath()},
		paramschema.Field{Name: "version", Type: paramschema.String(), Optional: true},
		paramschema.Field{Name: "update", Type: paramschema.Bool(), Optional: true},
		paramschema.Field{Name: "force", Type: paramschema.Bool(), Optional: true},
	)
	return span.New(pt, span.Span{})
}

func (Git) Expand(params paramschema.Value) (*tree.Node[Resource, Resource], error) {
	resource := Resource{Kind: KindGit, Git: &GitResource{
		Repo:    stringField(params, "repo"),
		Path:    stringField(params, "path"),
		Version: stringField(params, "version"),
		Update:  optionalBoolField(params, "update", true),
		Force:   optionalBoolField(params, "force", false),
	}}
	return leafResource(KindGit, tree.CausalityMeta{}, resource), nil
}

// gitStateError represents a repository state condition that blocks a
// diff from being computed at all rather than being expressed as an
// ordinary drift.
type gitStateError struct {
	msg string
}

func (e *gitStateError) Error() string { return e.msg }

func (Git) Probe(ctx context.Context, ex exec.Executor, resource Resource) (State, error) {
	gr := resource.Git

	info, err := ex.Stat(ctx, gr.Path)
	if err != nil {
		return State{}, err
	}
	if !info.Exists {
		return State{Kind: KindGit, Git: &GitState{Absent: true}}, nil
	}

	gitDir, err := gitRun(ctx, ex, gr.Path, "rev-parse", "--git-dir")
	if err != nil {
		return State{}, err
	}
	expectedGitDir := path.Join(gr.Path, ".git")
	actualGitDir := resolveGitDir(gr.Path, strings.TrimSpace(gitDir))
	if expectedGitDir != actualGitDir {
		return State{}, &gitStateError{msg: fmt.Sprintf("git dir mismatch: expected %s, got %s", expectedGitDir, actualGitDir)}
	}

	remote, remoteErr := gitRun(ctx, ex, gr.Path, "config", "--get", "remote.origin.url")
	remote = strings.TrimSpace(remote)
	if remoteErr != nil || remote != gr.Repo {
		return State{}, &gitStateError{msg: fmt.Sprintf("remote origin mismatch: expected %s, got %q", gr.Repo, remote)}
	}

	status, err := gitRun(ctx, ex, gr.Path, "status", "--porcelain")
	if err != nil {
		return State{}, err
	}
	isDirty := strings.TrimSpace(status) != ""
	if isDirty && !gr.Force {
		return State{}, &gitStateError{msg: "working tree has uncommitted changes"}
	}

	head, _ := gitRun(ctx, ex, gr.Path, "rev-parse", "HEAD")
	branch, _ := gitRun(ctx, ex, gr.Path, "symbolic-ref", "--quiet", "--short", "HEAD")

	return State{Kind: KindGit, Git: &GitState{
		Head:    strings.TrimSpace(head),
		Branch:  strings.TrimSpace(branch),
		IsDirty: isDirty,
	}}, nil
}

func gitRun(ctx context.Context, ex exec.Executor, repoPath string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)
	result, err := ex.Run(ctx, exec.RunParams{Command: "git", Args: fullArgs})
	if err != nil {
		return "", err
	}
	if !result.Succeeded() {
		return "", fmt.Errorf("git %s: exit %d: %s", strings.Join(args, " "), result.ExitCode, result.Stderr)
	}
	return result.Stdout, nil
}

func resolveGitDir(base, gitDir string) string {
	if path.IsAbs(gitDir) {
		return gitDir
	}
	return path.Join(base, gitDir)
}

func (Git) Diff(resource Resource, state State) Change {
	gr := resource.Git
	gs := state.Git

	if gs.Absent {
		return Change{Kind: KindGit, HasChange: true, Git: &GitChange{
			ChangeKind: GitChangeClone, Repo: gr.Repo, Path: gr.Path,
		}}
	}

	if gr.Version != "" {
		matches := gs.Branch == gr.Version || gs.Head == gr.Version
		if matches {
			if !gs.IsDirty && gr.Update && gs.Branch == gr.Version {
				return Change{Kind: KindGit, HasChange: true, Git: &GitChange{ChangeKind: GitChangePull, Path: gr.Path}}
			}
			return Change{Kind: KindGit, HasChange: false}
		}
		return Change{Kind: KindGit, HasChange: true, Git: &GitChange{
			ChangeKind: GitChangeCheckout, Path: gr.Path, Version: gr.Version, Force: gr.Force, Fetch: gr.Update,
		}}
	}

	if !gs.IsDirty && gr.Update && gs.Branch != "" {
		return Change{Kind: KindGit, HasChange: true, Git: &GitChange{ChangeKind: GitChangePull, Path: gr.Path}}
	}
	return Change{Kind: KindGit, HasChange: false}
}

func (Git) Lower(change Change) *tree.Node[operation.Operation, operation.Operation] {
	gc := change.Git
	switch gc.ChangeKind {
	case GitChangeClone:
		return leafOperation(tree.CausalityMeta{}, operation.GitClone(gc.Repo, gc.Path))
	case GitChangeCheckout:
		if gc.Fetch {
			fetch := leafOperation(tree.CausalityMeta{ID: "fetch"}, operation.GitFetch(gc.Path))
			checkout := leafOperation(tree.CausalityMeta{After: []string{"fetch"}}, operation.GitCheckout(gc.Path, gc.Version, gc.Force))
			return groupOperations(fetch, checkout)
		}
		return leafOperation(tree.CausalityMeta{}, operation.GitCheckout(gc.Path, gc.Version, gc.Force))
	case GitChangePull:
		return leafOperation(tree.CausalityMeta{}, operation.GitPull(gc.Path))
	}
	return leafOperation(tree.CausalityMeta{}, operation.GroupOperation())
}
