package registry

import (
	"context"
	"testing"

	"github.com/driftless/driftless/internal/paramschema"
)

func TestFile_ExpandDiscriminatesFileVsSource(t *testing.T) {
	node, err := File{}.Expand(structValue(map[string]paramschema.Value{
		"file": strValue("/etc/motd"),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Leaf.File.ResKind != FileResFilePresent {
		t.Errorf("expected FileResFilePresent, got %v", node.Leaf.File.ResKind)
	}

	node, err = File{}.Expand(structValue(map[string]paramschema.Value{
		"source": strValue("/plans/templates/motd"),
		"file":   strValue("/etc/motd"),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Leaf.File.ResKind != FileResSource || node.Leaf.File.SourcePath != "/plans/templates/motd" {
		t.Errorf("expected FileResSource from /plans/templates/motd, got %+v", node.Leaf.File)
	}
}

func TestFile_ExpandAddsPermissionSubLeaves(t *testing.T) {
	node, err := File{}.Expand(structValue(map[string]paramschema.Value{
		"file": strValue("/etc/motd"),
		"mode": intValue(0644),
		"user": strValue("root"),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(node.Children) != 3 {
		t.Fatalf("expected main+mode+user leaves, got %d", len(node.Children))
	}
	if node.Children[0].Meta.ID != "file" {
		t.Errorf("expected root op id 'file', got %+v", node.Children[0].Meta)
	}
	if len(node.Children[1].Meta.After) != 1 || node.Children[1].Meta.After[0] != "file" {
		t.Errorf("expected mode leaf to run after 'file', got %+v", node.Children[1].Meta)
	}
}

func TestFile_ProbeDetectsAbsentFile(t *testing.T) {
	ex := newScriptedExecutor()
	state, err := File{}.Probe(context.Background(), ex, Resource{
		Kind: KindFile, File: &FileResource{ResKind: FileResFilePresent, Path: "/etc/motd"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.File.Probe != FileProbeAbsent {
		t.Errorf("expected FileProbeAbsent, got %v", state.File.Probe)
	}
}

func TestFile_DiffWritesEmptyContentWhenAbsent(t *testing.T) {
	resource := Resource{Kind: KindFile, File: &FileResource{ResKind: FileResFilePresent, Path: "/etc/motd"}}
	change := File{}.Diff(resource, State{Kind: KindFile, File: &FileState{Probe: FileProbeAbsent}})
	if !change.HasChange || change.File.ResKind != FileResFilePresent {
		t.Errorf("expected a write change, got %+v", change)
	}

	node := File{}.Lower(change)
	if node.Leaf.File == nil || node.Leaf.File.OpKind != "write-file" {
		t.Errorf("expected a write-file operation, got %+v", node.Leaf)
	}
}

func TestFile_DiffRemovesWhenFileAbsentButPresent(t *testing.T) {
	resource := Resource{Kind: KindFile, File: &FileResource{ResKind: FileResFileAbsent, Path: "/etc/motd"}}
	change := File{}.Diff(resource, State{Kind: KindFile, File: &FileState{Probe: FileProbePresent}})
	if !change.HasChange || change.File.ResKind != FileResFileAbsent {
		t.Errorf("expected a remove change, got %+v", change)
	}
}
