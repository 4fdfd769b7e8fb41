package updatestream

import (
	"encoding/json"
	"fmt"

	"github.com/driftless/driftless/internal/tree"
)

// ViewNode is one arena slot's accumulated view state: whatever the update
// stream has told the UI about this node so far. Fields are filled in
// incrementally as records arrive; a UI renders whatever subset is
// populated rather than waiting for the whole apply to finish.
type ViewNode struct {
	Value json.RawMessage // the PlanTree/ResourceTree item this slot represents

	State      json.RawMessage
	Change     json.RawMessage
	HasChanges bool
	Ops        json.RawMessage

	OpStarted bool
	OpStatus  *int
	Stdout    []string
	Stderr    []string
}

// FlatView is a FlatViewTree: the replayed, UI-consumable projection of an
// update stream, built on internal/tree.FlatTree's arena/tombstone model so
// that a ResourcesNode record (replacing one leaf with its expansion) can
// reuse the same slot-reservation and tombstoning logic the pipeline itself
// uses internally, per section 8 invariant 8 ("stream replay tolerates
// out-of-order leaf completion").
type FlatView struct {
	tree *tree.FlatTree[ViewNode]
}

// NewFlatView returns an empty view, populated by its first Apply(Record)
// call (always a ResourceParams record).
func NewFlatView() *FlatView {
	return &FlatView{tree: &tree.FlatTree[ViewNode]{}}
}

// Tree exposes the underlying FlatTree for read access (rendering, tests).
func (v *FlatView) Tree() *tree.FlatTree[ViewNode] { return v.tree }

func viewLeaf(value json.RawMessage) ViewNode { return ViewNode{Value: value} }

func wireToNode(w *WireNode) *tree.Node[json.RawMessage, json.RawMessage] {
	if w == nil {
		return nil
	}
	var meta *tree.CausalityMeta
	if w.Meta != nil {
		meta = &tree.CausalityMeta{ID: w.Meta.ID, Before: w.Meta.Before, After: w.Meta.After}
	}
	if w.IsLeaf {
		return &tree.Node[json.RawMessage, json.RawMessage]{Kind: tree.KindLeaf, Meta: meta, Leaf: w.Value}
	}
	children := make([]*tree.Node[json.RawMessage, json.RawMessage], len(w.Children))
	for i, c := range w.Children {
		children[i] = wireToNode(c)
	}
	return &tree.Node[json.RawMessage, json.RawMessage]{Kind: tree.KindBranch, Meta: meta, Branch: w.Value, Children: children}
}

func decodeWireTree(raw json.RawMessage) (*tree.Node[json.RawMessage, json.RawMessage], error) {
	var w WireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("updatestream: decode tree payload: %w", err)
	}
	return wireToNode(&w), nil
}

// Apply folds one Record into the view, in the order the update stream
// produced them. Records with an Index update that slot in place;
// ResourceParams/ResourcesNode replace a subtree structurally.
func (v *FlatView) Apply(rec Record) error {
	switch rec.Kind {
	case KindResourceParams:
		root, err := decodeWireTree(rec.Tree)
		if err != nil {
			return err
		}
		v.tree = tree.Flatten(root, viewLeaf, viewLeaf)
		return nil

	case KindResourcesNode:
		if rec.Index == nil {
			return fmt.Errorf("updatestream: resources_node record missing index")
		}
		root, err := decodeWireTree(rec.Tree)
		if err != nil {
			return err
		}
		return tree.ReplaceSubtree(v.tree, *rec.Index, root, viewLeaf, viewLeaf)

	case KindStatesNodeComplete:
		return v.mutate(rec.Index, func(n *ViewNode) { n.State = rec.State })

	case KindChangesNode:
		hasChanges := rec.HasChanges != nil && *rec.HasChanges
		if rec.HasChanges == nil {
			// Per-node records carry no has_changes flag: take the change
			// payload's own HasChange field when it has one, and otherwise
			// count any non-null payload as a change.
			var c struct{ HasChange *bool }
			if err := json.Unmarshal(rec.Change, &c); err == nil && c.HasChange != nil {
				hasChanges = *c.HasChange
			} else {
				hasChanges = len(rec.Change) > 0 && string(rec.Change) != "null"
			}
		}
		return v.mutate(rec.Index, func(n *ViewNode) {
			n.Change = rec.Change
			n.HasChanges = hasChanges
		})

	case KindOperationsNode:
		return v.mutate(rec.Index, func(n *ViewNode) { n.Ops = rec.Ops })

	case KindOpStart:
		return v.mutate(rec.Index, func(n *ViewNode) { n.OpStarted = true })

	case KindStdout:
		return v.mutate(rec.Index, func(n *ViewNode) { n.Stdout = append(n.Stdout, rec.Line) })

	case KindStderr:
		return v.mutate(rec.Index, func(n *ViewNode) { n.Stderr = append(n.Stderr, rec.Line) })

	case KindOpComplete:
		return v.mutate(rec.Index, func(n *ViewNode) { n.OpStatus = rec.Status })

	case KindResourcesStart, KindResourcesComplete,
		KindStatesStart, KindStatesNodeStart, KindStatesComplete,
		KindChangesStart, KindChangesComplete,
		KindOperationsStart, KindOperationsComplete,
		KindApplyStart, KindApplyComplete, KindError:
		// Stage boundary / diagnostic records carry no per-node state to
		// fold into the view; a caller that wants a progress indicator
		// tracks these directly off the raw stream instead.
		return nil

	default:
		return fmt.Errorf("updatestream: unknown record kind %q", rec.Kind)
	}
}

// mutate applies f to the ViewNode at index, tolerating an index that
// refers to a slot tombstoned by a later structural replacement (a
// straggling per-node record for a subtree the pipeline has since
// replaced is simply dropped, per invariant 8's out-of-order tolerance).
func (v *FlatView) mutate(index *int, f func(*ViewNode)) error {
	if index == nil {
		return fmt.Errorf("updatestream: record missing index")
	}
	node, err := v.tree.Get(*index)
	if err != nil {
		return nil
	}
	f(&node.Value)
	return nil
}
