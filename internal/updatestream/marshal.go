package updatestream

import (
	"encoding/json"
	"fmt"

	"github.com/driftless/driftless/internal/tree"
)

// ToWireNode converts a tree.Node into its WireNode projection, marshaling
// branch and leaf payloads with the given functions. Used by
// internal/pipeline to turn a PlanTree/ResourceTree/ChangeTree/
// OperationTree into the Tree field of a ResourceParams/ResourcesNode
// record.
func ToWireNode[Branch, Leaf any](n *tree.Node[Branch, Leaf], marshalBranch func(Branch) (json.RawMessage, error), marshalLeaf func(Leaf) (json.RawMessage, error)) (*WireNode, error) {
	if n == nil {
		return nil, nil
	}

	w := &WireNode{IsLeaf: n.IsLeaf()}
	if n.Meta != nil {
		w.Meta = &WireCausalityMeta{ID: n.Meta.ID, Before: n.Meta.Before, After: n.Meta.After}
	}

	if n.IsLeaf() {
		value, err := marshalLeaf(n.Leaf)
		if err != nil {
			return nil, fmt.Errorf("updatestream: marshal leaf: %w", err)
		}
		w.Value = value
		return w, nil
	}

	value, err := marshalBranch(n.Branch)
	if err != nil {
		return nil, fmt.Errorf("updatestream: marshal branch: %w", err)
	}
	w.Value = value

	w.Children = make([]*WireNode, 0, len(n.Children))
	for _, c := range n.Children {
		child, err := ToWireNode(c, marshalBranch, marshalLeaf)
		if err != nil {
			return nil, err
		}
		w.Children = append(w.Children, child)
	}
	return w, nil
}

// MarshalJSONValue is a convenience marshalBranch/marshalLeaf function for
// any JSON-marshalable payload type.
func MarshalJSONValue[T any](v T) (json.RawMessage, error) {
	return json.Marshal(v)
}
