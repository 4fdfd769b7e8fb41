package registry

import (
	"context"
	"testing"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/paramschema"
)

func TestPacman_ExpandPackageList(t *testing.T) {
	node, err := Pacman{}.Expand(structValue(map[string]paramschema.Value{
		"packages": listValue(strValue("neovim"), strValue("ripgrep")),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(node.Children) != 2 {
		t.Fatalf("expected 2 sibling leaves, got %d", len(node.Children))
	}
}

func TestPacman_ProbeReportsInstalled(t *testing.T) {
	ex := newScriptedExecutor()
	ex.on("pacman", []string{"-Q", "neovim"}, exec.RunResult{ExitCode: 0, Stdout: "neovim 0.9.5-1\n"})

	state, err := Pacman{}.Probe(context.Background(), ex, Resource{Kind: KindPacman, Pacman: &PacmanResource{Package: "neovim"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.Pacman.Installed {
		t.Error("expected package to be reported installed")
	}
}

func TestPacman_ProbeReportsNotInstalled(t *testing.T) {
	ex := newScriptedExecutor()
	ex.on("pacman", []string{"-Q", "neovim"}, exec.RunResult{ExitCode: 1, Stderr: "error: package 'neovim' was not found\n"})

	state, err := Pacman{}.Probe(context.Background(), ex, Resource{Kind: KindPacman, Pacman: &PacmanResource{Package: "neovim"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Pacman.Installed {
		t.Error("expected package to be reported not installed")
	}
}

func TestPacman_LowerOrdersUpgradeBeforeInstall(t *testing.T) {
	change := Change{Kind: KindPacman, HasChange: true, Pacman: &PacmanChange{Package: "neovim"}}
	node := Pacman{}.Lower(change)
	if len(node.Children) != 2 {
		t.Fatalf("expected upgrade+install operations, got %d", len(node.Children))
	}
	if node.Children[0].Meta.ID != "upgrade" {
		t.Errorf("expected first op to carry id 'upgrade', got %+v", node.Children[0].Meta)
	}
	if len(node.Children[1].Meta.After) != 1 || node.Children[1].Meta.After[0] != "upgrade" {
		t.Errorf("expected second op to run after 'upgrade', got %+v", node.Children[1].Meta)
	}
}
