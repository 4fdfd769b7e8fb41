package registry

import (
	"context"
	"testing"

	"github.com/driftless/driftless/internal/exec"
)

func gitResource(path, version string) Resource {
	return Resource{Kind: KindGit, Git: &GitResource{
		Repo: "https://example.com/repo.git", Path: path, Version: version, Update: true,
	}}
}

func TestGit_ProbeReportsAbsentWhenPathMissing(t *testing.T) {
	ex := newScriptedExecutor()
	state, err := Git{}.Probe(context.Background(), ex, gitResource("/srv/app", "main"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.Git.Absent {
		t.Error("expected GitState.Absent for a missing path")
	}
}

func TestGit_ProbeReadsHeadAndBranch(t *testing.T) {
	ex := newScriptedExecutor()
	ex.files["/srv/app"] = exec.FileInfo{Exists: true, IsDir: true}
	ex.on("git", []string{"-C", "/srv/app", "rev-parse", "--git-dir"}, exec.RunResult{Stdout: ".git\n"})
	ex.on("git", []string{"-C", "/srv/app", "config", "--get", "remote.origin.url"}, exec.RunResult{Stdout: "https://example.com/repo.git\n"})
	ex.on("git", []string{"-C", "/srv/app", "status", "--porcelain"}, exec.RunResult{Stdout: ""})
	ex.on("git", []string{"-C", "/srv/app", "rev-parse", "HEAD"}, exec.RunResult{Stdout: "abc123\n"})
	ex.on("git", []string{"-C", "/srv/app", "symbolic-ref", "--quiet", "--short", "HEAD"}, exec.RunResult{Stdout: "main\n"})

	state, err := Git{}.Probe(context.Background(), ex, gitResource("/srv/app", "main"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Git.Head != "abc123" || state.Git.Branch != "main" || state.Git.IsDirty {
		t.Errorf("unexpected state: %+v", state.Git)
	}
}

func TestGit_DiffClonesWhenAbsent(t *testing.T) {
	change := Git{}.Diff(gitResource("/srv/app", "main"), State{Kind: KindGit, Git: &GitState{Absent: true}})
	if !change.HasChange || change.Git.ChangeKind != GitChangeClone {
		t.Errorf("expected a clone change, got %+v", change)
	}
}

func TestGit_DiffPullsWhenOnTargetBranchAndUpToDate(t *testing.T) {
	change := Git{}.Diff(gitResource("/srv/app", "main"), State{Kind: KindGit, Git: &GitState{Branch: "main", Head: "abc123"}})
	if !change.HasChange || change.Git.ChangeKind != GitChangePull {
		t.Errorf("expected a pull change, got %+v", change)
	}
}

func TestGit_DiffCheckoutWithFetchWhenVersionDiffers(t *testing.T) {
	change := Git{}.Diff(gitResource("/srv/app", "v2"), State{Kind: KindGit, Git: &GitState{Branch: "main", Head: "abc123"}})
	if !change.HasChange || change.Git.ChangeKind != GitChangeCheckout || !change.Git.Fetch {
		t.Errorf("expected a fetch+checkout change, got %+v", change)
	}

	node := Git{}.Lower(change)
	if len(node.Children) != 2 {
		t.Fatalf("expected fetch+checkout operations, got %d", len(node.Children))
	}
	if node.Children[0].Meta.ID != "fetch" {
		t.Errorf("expected first op id 'fetch', got %+v", node.Children[0].Meta)
	}
	if len(node.Children[1].Meta.After) != 1 || node.Children[1].Meta.After[0] != "fetch" {
		t.Errorf("expected checkout to run after fetch, got %+v", node.Children[1].Meta)
	}
}
