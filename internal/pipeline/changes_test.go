package pipeline

import (
	"testing"

	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/tree"
	"github.com/driftless/driftless/internal/updatestream"
)

func fileLeaf(resID, path string, have registry.FileProbeResult) *tree.Node[*nodeData, *nodeData] {
	nd := &nodeData{
		resource: registry.Resource{Kind: registry.KindFile, File: &registry.FileResource{ResKind: registry.FileResFilePresent, Path: path}},
		state:    &registry.State{Kind: registry.KindFile, File: &registry.FileState{Probe: have}},
	}
	return tree.NewLeaf[*nodeData, *nodeData](nd, &tree.CausalityMeta{ID: resID})
}

func groupBranch(resID string, children ...*tree.Node[*nodeData, *nodeData]) *tree.Node[*nodeData, *nodeData] {
	nd := &nodeData{resource: registry.Resource{Kind: registry.KindGroup}}
	return tree.NewBranch[*nodeData, *nodeData](nd, &tree.CausalityMeta{ID: resID}, children...)
}

func noopEmit(updatestream.Record) error { return nil }

func TestRunChanges_BubblesHasChangeUpThroughGroupsByOR(t *testing.T) {
	reg := registry.NewRegistry()

	changed := fileLeaf("res-changed", "/etc/a", registry.FileProbeAbsent)
	unchanged := fileLeaf("res-unchanged", "/etc/b", registry.FileProbePresent)
	root := groupBranch("root", changed, unchanged)

	ft := buildFlatTree(root)

	if err := runChanges(ft, reg, noopEmit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rootSlot, err := ft.Root()
	if err != nil {
		t.Fatalf("unexpected error fetching root: %v", err)
	}
	if rootSlot.Value.change == nil || !rootSlot.Value.change.HasChange {
		t.Fatalf("expected root group's change to bubble up true, got %+v", rootSlot.Value.change)
	}

	for _, idx := range rootSlot.Children {
		child, err := ft.Get(idx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if child.Value.change == nil {
			t.Fatalf("expected every leaf to have a computed change")
		}
	}
}

func TestRunChanges_NoChangeAnywhereBubblesFalse(t *testing.T) {
	reg := registry.NewRegistry()

	a := fileLeaf("res-a", "/etc/a", registry.FileProbePresent)
	b := fileLeaf("res-b", "/etc/b", registry.FileProbePresent)
	root := groupBranch("root", a, b)

	ft := buildFlatTree(root)

	if err := runChanges(ft, reg, noopEmit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rootSlot, err := ft.Root()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rootSlot.Value.change == nil || rootSlot.Value.change.HasChange {
		t.Fatalf("expected root group's change to bubble up false, got %+v", rootSlot.Value.change)
	}
}
