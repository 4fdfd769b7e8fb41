package registry

import (
	"context"
	"testing"

	"github.com/driftless/driftless/internal/paramschema"
)

func TestCommand_ExpandDiscriminatesInstallVsUninstall(t *testing.T) {
	node, err := Command{}.Expand(structValue(map[string]paramschema.Value{
		"install": strValue("make install"),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Leaf.Command.Action != CommandActionInstall {
		t.Errorf("expected install action, got %v", node.Leaf.Command.Action)
	}

	node, err = Command{}.Expand(structValue(map[string]paramschema.Value{
		"uninstall": strValue("make uninstall"),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Leaf.Command.Action != CommandActionUninstall {
		t.Errorf("expected uninstall action, got %v", node.Leaf.Command.Action)
	}
}

func TestCommand_ProbeUnknownWithoutIsInstalled(t *testing.T) {
	ex := newScriptedExecutor()
	resource := Resource{Kind: KindCommand, Command: &CommandResource{Action: CommandActionInstall, Install: "make install"}}

	state, err := Command{}.Probe(context.Background(), ex, resource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Command.Probe != CommandUnknown {
		t.Errorf("expected CommandUnknown, got %v", state.Command.Probe)
	}
	if len(ex.runs) != 0 {
		t.Errorf("expected no probe command to run, got %+v", ex.runs)
	}
}

func TestCommand_DiffRunsInstallWhenNotInstalled(t *testing.T) {
	resource := Resource{Kind: KindCommand, Command: &CommandResource{
		Action: CommandActionInstall, Install: "make install", IsInstalled: "which thing",
	}}
	change := Command{}.Diff(resource, State{Kind: KindCommand, Command: &CommandState{Probe: CommandNotInstalled}})
	if !change.HasChange || change.Command.Command != "make install" {
		t.Errorf("expected an install change, got %+v", change)
	}

	change = Command{}.Diff(resource, State{Kind: KindCommand, Command: &CommandState{Probe: CommandInstalled}})
	if change.HasChange {
		t.Errorf("expected no change once installed, got %+v", change)
	}
}
