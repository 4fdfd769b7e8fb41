package updatestream

import (
	"encoding/json"
	"testing"
)

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func sampleWireTree() *WireNode {
	return &WireNode{
		IsLeaf: false,
		Value:  rawString("root"),
		Children: []*WireNode{
			{IsLeaf: true, Meta: &WireCausalityMeta{ID: "a"}, Value: rawString("leaf-a")},
			{IsLeaf: true, Meta: &WireCausalityMeta{ID: "b"}, Value: rawString("leaf-b")},
		},
	}
}

func mustMarshalWire(t *testing.T, w *WireNode) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal wire node: %v", err)
	}
	return b
}

func TestFlatView_ResourceParamsBuildsTree(t *testing.T) {
	view := NewFlatView()
	if err := view.Apply(ResourceParams(mustMarshalWire(t, sampleWireTree()))); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if view.Tree().Len() != 3 {
		t.Fatalf("expected 3 slots (root + 2 leaves), got %d", view.Tree().Len())
	}

	leafA, err := view.Tree().Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if string(leafA.Value.Value) != `"leaf-a"` {
		t.Errorf("leaf 1 value = %s, want %q", leafA.Value.Value, "leaf-a")
	}
}

func TestFlatView_PerNodeRecordsUpdateInPlace(t *testing.T) {
	view := NewFlatView()
	if err := view.Apply(ResourceParams(mustMarshalWire(t, sampleWireTree()))); err != nil {
		t.Fatalf("Apply ResourceParams: %v", err)
	}

	if err := view.Apply(StatesNodeComplete(1, rawString("present"))); err != nil {
		t.Fatalf("Apply StatesNodeComplete: %v", err)
	}
	if err := view.Apply(ChangesNode(1, rawString("write-file"))); err != nil {
		t.Fatalf("Apply ChangesNode: %v", err)
	}
	if err := view.Apply(OpComplete(1, 0)); err != nil {
		t.Fatalf("Apply OpComplete: %v", err)
	}

	node, err := view.Tree().Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if string(node.Value.State) != `"present"` {
		t.Errorf("State = %s, want %q", node.Value.State, "present")
	}
	if !node.Value.HasChanges {
		t.Error("expected HasChanges to be true")
	}
	if node.Value.OpStatus == nil || *node.Value.OpStatus != 0 {
		t.Error("expected OpStatus to be set to 0")
	}
}

func TestFlatView_ResourcesNodeReplacesSubtree(t *testing.T) {
	view := NewFlatView()
	if err := view.Apply(ResourceParams(mustMarshalWire(t, sampleWireTree()))); err != nil {
		t.Fatalf("Apply ResourceParams: %v", err)
	}

	expansion := &WireNode{
		IsLeaf: false,
		Value:  rawString("expanded"),
		Children: []*WireNode{
			{IsLeaf: true, Value: rawString("sub-1")},
			{IsLeaf: true, Value: rawString("sub-2")},
		},
	}
	if err := view.Apply(ResourcesNode(1, mustMarshalWire(t, expansion))); err != nil {
		t.Fatalf("Apply ResourcesNode: %v", err)
	}

	if view.Tree().Len() != 5 {
		t.Fatalf("expected 5 slots after expansion (3 original + 2 new), got %d", view.Tree().Len())
	}

	replaced, err := view.Tree().Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if string(replaced.Value.Value) != `"expanded"` {
		t.Errorf("slot 1 value = %s, want %q", replaced.Value.Value, "expanded")
	}
}

func TestFlatView_StragglingRecordAfterReplaceIsTolerated(t *testing.T) {
	view := NewFlatView()
	if err := view.Apply(ResourceParams(mustMarshalWire(t, sampleWireTree()))); err != nil {
		t.Fatalf("Apply ResourceParams: %v", err)
	}

	expansion := &WireNode{IsLeaf: true, Value: rawString("replaced")}
	if err := view.Apply(ResourcesNode(1, mustMarshalWire(t, expansion))); err != nil {
		t.Fatalf("Apply ResourcesNode: %v", err)
	}

	// A probe completion for the pre-expansion leaf 2 (now tombstoned)
	// arrives after the structural replacement; it must not error.
	if err := view.Apply(StatesNodeComplete(2, rawString("stale"))); err != nil {
		t.Fatalf("expected straggling record to be tolerated, got error: %v", err)
	}
}

func TestFlatView_StageBoundaryRecordsAreNoOps(t *testing.T) {
	view := NewFlatView()
	if err := view.Apply(ResourceParams(mustMarshalWire(t, sampleWireTree()))); err != nil {
		t.Fatalf("Apply ResourceParams: %v", err)
	}
	for _, rec := range []Record{ResourcesStart(), ResourcesComplete(), StatesStart(), StatesComplete(), ApplyStart(), ApplyComplete()} {
		if err := view.Apply(rec); err != nil {
			t.Errorf("Apply(%s): unexpected error: %v", rec.Kind, err)
		}
	}
}
