package pipeline

import (
	"testing"

	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/tree"
)

func identityData(nd *nodeData) *nodeData { return nd }

// buildFlatTree wraps tree.Flatten with nodeData's own identity mapping, so
// tests can assemble a working FlatTree[*nodeData] the same way buildSkeleton
// and expandResources do in the real pipeline.
func buildFlatTree(root *tree.Node[*nodeData, *nodeData]) *tree.FlatTree[*nodeData] {
	return tree.Flatten(root, identityData, identityData)
}

func groupLeaf(resID string, after []string, r registry.Resource, changed bool, ops *tree.Node[operation.Operation, operation.Operation]) *tree.Node[*nodeData, *nodeData] {
	var change *registry.Change
	if changed {
		change = &registry.Change{Kind: r.Kind, HasChange: true}
	} else {
		change = &registry.Change{Kind: r.Kind, HasChange: false}
	}
	nd := &nodeData{resource: r, change: change, ops: ops}
	return tree.NewLeaf[*nodeData, *nodeData](nd, &tree.CausalityMeta{ID: resID, After: after})
}

func TestFlattenForApply_ChangedResourceGetsOpsAndBarrier(t *testing.T) {
	fetch := tree.NewLeaf[operation.Operation, operation.Operation](operation.GitFetch("/srv/app"), &tree.CausalityMeta{ID: "fetch"})
	checkout := tree.NewLeaf[operation.Operation, operation.Operation](operation.GitCheckout("/srv/app", "main", false), &tree.CausalityMeta{After: []string{"fetch"}})
	ops := tree.NewBranch[operation.Operation, operation.Operation](operation.GroupOperation(), nil, fetch, checkout)

	leaf := groupLeaf("res-a", nil, registry.Resource{Kind: registry.KindGit, Git: &registry.GitResource{}}, true, ops)
	ft := buildFlatTree(leaf)

	globalOps, err := flattenForApply(ft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var barrier *globalOp
	var opCount int
	for i := range globalOps {
		g := &globalOps[i]
		if g.id == "res-a" {
			barrier = g
			continue
		}
		opCount++
	}
	if barrier == nil {
		t.Fatalf("expected a barrier globalOp with id %q", "res-a")
	}
	if opCount != 2 {
		t.Fatalf("expected 2 lowered operation globalOps, got %d", opCount)
	}
	// Only the checkout leaf is terminal: fetch is referenced by checkout's
	// own After, so it's an intermediate step, not a dependency other
	// resources should wait on. Checkout has no local id of its own, so it
	// gets a synthetic "_opN" id from its position in the locally-flattened
	// ops tree.
	if len(barrier.after) != 1 || barrier.after[0] != "res-a/_op2" {
		t.Fatalf("expected barrier to depend on just the checkout leaf, got %v", barrier.after)
	}
}

func TestFlattenForApply_UnchangedResourceStillGetsBarrier(t *testing.T) {
	leaf := groupLeaf("res-b", nil, registry.Resource{Kind: registry.KindGit, Git: &registry.GitResource{}}, false, nil)
	leaf.Meta.Before = []string{"res-a"}
	ft := buildFlatTree(leaf)

	globalOps, err := flattenForApply(ft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(globalOps) != 1 {
		t.Fatalf("expected exactly one barrier globalOp for an unchanged resource, got %d", len(globalOps))
	}
	g := globalOps[0]
	if g.id != "res-b" {
		t.Errorf("expected barrier id %q, got %q", "res-b", g.id)
	}
	if g.op.Kind != operation.KindGroup {
		t.Errorf("expected barrier op to be KindGroup so operation.Merge drops it, got %v", g.op.Kind)
	}
	if len(g.before) != 1 || g.before[0] != "res-a" {
		t.Errorf("expected barrier before to carry the resource's own Before list, got %v", g.before)
	}
}

func TestFlattenForApply_MissingCausalityIDErrors(t *testing.T) {
	nd := &nodeData{resource: registry.Resource{Kind: registry.KindGit}, change: &registry.Change{HasChange: false}}
	root := tree.NewLeaf[*nodeData, *nodeData](nd, &tree.CausalityMeta{})
	ft := buildFlatTree(root)

	if _, err := flattenForApply(ft); err == nil {
		t.Fatal("expected an error when a resource slot has no causality id")
	}
}

func TestAttributeOrigins_AptPacmanBroadcastToAllContributors(t *testing.T) {
	originsByKind := map[operation.Kind][]int{operation.KindApt: {0, 2, 5}}
	cursor := map[operation.Kind]int{}

	got := attributeOrigins(operation.KindApt, originsByKind, cursor)
	if len(got) != 3 || got[0] != 0 || got[1] != 2 || got[2] != 5 {
		t.Fatalf("expected all apt origins broadcast, got %v", got)
	}

	// Calling again for the same kind still returns every contributor: Apt's
	// merge genuinely folds them into one applied operation, so there's no
	// cursor to advance.
	got2 := attributeOrigins(operation.KindApt, originsByKind, cursor)
	if len(got2) != 3 {
		t.Fatalf("expected repeat calls to still broadcast to all origins, got %v", got2)
	}
}

func TestAttributeOrigins_OtherKindsAdvanceAPositionalCursor(t *testing.T) {
	originsByKind := map[operation.Kind][]int{operation.KindFile: {7, 9}}
	cursor := map[operation.Kind]int{}

	first := attributeOrigins(operation.KindFile, originsByKind, cursor)
	second := attributeOrigins(operation.KindFile, originsByKind, cursor)
	third := attributeOrigins(operation.KindFile, originsByKind, cursor)

	if len(first) != 1 || first[0] != 7 {
		t.Fatalf("expected first call to return origin 7, got %v", first)
	}
	if len(second) != 1 || second[0] != 9 {
		t.Fatalf("expected second call to return origin 9, got %v", second)
	}
	if len(third) != 0 {
		t.Fatalf("expected the cursor to run out after origins are exhausted, got %v", third)
	}
}
