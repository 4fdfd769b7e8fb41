package pipeline

import (
	"encoding/json"

	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/tree"
	"github.com/driftless/driftless/internal/updatestream"
)

// runChanges diffs every atomic resource's desired Resource against its
// probed State, then bubbles HasChange up through group branches via OR,
// relying on FlatTree.DepthFirstSearch's post-order guarantee so a branch's
// children are always diffed (or, for nested group branches, already
// bubbled) before the branch itself is visited.
func runChanges(ft *tree.FlatTree[*nodeData], reg *registry.Registry, emit func(updatestream.Record) error) error {
	if err := emit(updatestream.ChangesStart()); err != nil {
		return err
	}

	var rootHasChange bool
	var walkErr error

	ft.DepthFirstSearch(func(i int, n *tree.FlatNode[*nodeData]) {
		if walkErr != nil {
			return
		}
		nd := n.Value

		if isGroup(nd) {
			hasChange := false
			for _, ci := range n.Children {
				child, err := ft.Get(ci)
				if err != nil {
					continue
				}
				if child.Value.change != nil && child.Value.change.HasChange {
					hasChange = true
				}
			}
			nd.change = &registry.Change{Kind: registry.KindGroup, HasChange: hasChange}
		} else {
			rt, ok := reg.Lookup(moduleFor(nd.resource))
			if !ok {
				walkErr = unknownModuleErr(moduleFor(nd.resource), i)
				return
			}
			var state registry.State
			if nd.state != nil {
				state = *nd.state
			}
			change := rt.Diff(nd.resource, state)
			nd.change = &change
		}

		if i == ft.RootIndex() {
			rootHasChange = nd.change != nil && nd.change.HasChange
		}

		raw, merr := json.Marshal(nd.change)
		if merr != nil {
			walkErr = merr
			return
		}
		if err := emit(updatestream.ChangesNode(i, raw)); err != nil {
			walkErr = err
		}
	})
	if walkErr != nil {
		return walkErr
	}

	return emit(updatestream.ChangesComplete(rootHasChange))
}
