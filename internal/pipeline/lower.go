package pipeline

import (
	"encoding/json"

	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/tree"
	"github.com/driftless/driftless/internal/updatestream"
)

func marshalOperation(op operation.Operation) (json.RawMessage, error) { return json.Marshal(op) }

// runLower calls Lower on every changed resource's diff, storing the
// resulting operation (sub)tree as one opaque blob on that resource's own
// slot — it is never flattened into further update-stream-visible indices,
// since the Apply stage's causality graph operates on resource ids, not on
// individual lowered steps.
func runLower(ft *tree.FlatTree[*nodeData], reg *registry.Registry, emit func(updatestream.Record) error) error {
	if err := emit(updatestream.OperationsStart()); err != nil {
		return err
	}

	var walkErr error
	ft.DepthFirstSearch(func(i int, n *tree.FlatNode[*nodeData]) {
		if walkErr != nil {
			return
		}
		nd := n.Value
		if isGroup(nd) || nd.change == nil || !nd.change.HasChange {
			return
		}

		rt, ok := reg.Lookup(moduleFor(nd.resource))
		if !ok {
			walkErr = unknownModuleErr(moduleFor(nd.resource), i)
			return
		}
		nd.ops = rt.Lower(*nd.change)

		wire, werr := updatestream.ToWireNode(nd.ops, marshalOperation, marshalOperation)
		if werr != nil {
			walkErr = werr
			return
		}
		raw, merr := json.Marshal(wire)
		if merr != nil {
			walkErr = merr
			return
		}
		if err := emit(updatestream.OperationsNode(i, raw)); err != nil {
			walkErr = err
		}
	})
	if walkErr != nil {
		return walkErr
	}

	return emit(updatestream.OperationsComplete())
}
