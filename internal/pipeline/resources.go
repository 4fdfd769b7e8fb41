package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/planlang"
	"github.com/driftless/driftless/internal/planlang/source"
	"github.com/driftless/driftless/internal/pipelineerr"
	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/span"
	"github.com/driftless/driftless/internal/system"
	"github.com/driftless/driftless/internal/tree"
	"github.com/driftless/driftless/internal/updatestream"
)

// buildResourceParams loads planID, evaluates its setup() against the given
// arguments, and returns the classified PlanTree plus the update-stream
// ResourceParams record describing it.
func buildResourceParams(st source.Store, reg *registry.Registry, planID source.ItemID, paramsJSON string) (*tree.Node[planlang.NestedPlanCall, planlang.ResourceParams], updatestream.Record, *pipelineerr.Error) {
	sys, err := system.Collect()
	if err != nil {
		return nil, updatestream.Record{}, pipelineerr.NewEvaluateError("collecting system facts", err)
	}

	raw, jerr := decodeRawValue(paramsJSON)
	if jerr != nil {
		return nil, updatestream.Record{}, pipelineerr.NewParseError("decoding run parameters", jerr)
	}
	spanned := span.New(raw, span.Span{})

	planTree, perr := planlang.BuildPlanTree(st, reg, planID, spanned, sys, "")
	if perr != nil {
		return nil, updatestream.Record{}, perr
	}

	wire, werr := updatestream.ToWireNode(planTree, marshalNestedPlanCall, marshalResourceParams)
	if werr != nil {
		return nil, updatestream.Record{}, pipelineerr.NewBadPlanShapeError(werr.Error())
	}
	data, merr := json.Marshal(wire)
	if merr != nil {
		return nil, updatestream.Record{}, pipelineerr.NewBadPlanShapeError(merr.Error())
	}
	return planTree, updatestream.ResourceParams(data), nil
}

func marshalNestedPlanCall(n planlang.NestedPlanCall) (json.RawMessage, error) {
	return json.Marshal(n)
}

func marshalResourceParams(r planlang.ResourceParams) (json.RawMessage, error) {
	return json.Marshal(r)
}

func marshalResource(r registry.Resource) (json.RawMessage, error) {
	return json.Marshal(r)
}

// buildSkeleton flattens planTree into the pipeline's working FlatTree,
// seeding every leaf with its not-yet-expanded ResourceParams and every
// branch with a synthetic group placeholder.
func buildSkeleton(planTree *tree.Node[planlang.NestedPlanCall, planlang.ResourceParams]) *tree.FlatTree[*nodeData] {
	return tree.Flatten(planTree,
		func(planlang.NestedPlanCall) *nodeData { return &nodeData{resource: registry.Resource{Kind: registry.KindGroup}} },
		func(rp planlang.ResourceParams) *nodeData {
			leaf := rp
			return &nodeData{pendingParams: &leaf}
		},
	)
}

// expandResources walks every pending leaf and replaces it with its Expand()
// result, emitting one ResourcesNode record per replaced leaf, bracketed by
// ResourcesStart/ResourcesComplete.
func expandResources(ft *tree.FlatTree[*nodeData], reg *registry.Registry, emit func(updatestream.Record) error) error {
	if err := emit(updatestream.ResourcesStart()); err != nil {
		return err
	}

	var pending []int
	ft.DepthFirstSearch(func(i int, n *tree.FlatNode[*nodeData]) {
		if n.Value.pendingParams != nil {
			pending = append(pending, i)
		}
	})

	for _, i := range pending {
		slot, err := ft.Get(i)
		if err != nil {
			continue
		}
		params := slot.Value.pendingParams

		rt, ok := reg.Lookup(params.Module)
		if !ok {
			return pipelineerr.NewUnknownCoreModuleError(params.Module).WithNodeIndex(i)
		}
		expansion, eerr := rt.Expand(params.Params.Value)
		if eerr != nil {
			return pipelineerr.NewBadPlanShapeError(eerr.Error()).WithNodeIndex(i)
		}

		originalMeta := slot.Meta
		if err := tree.ReplaceSubtree(ft, i, expansion, groupResourceMap, groupResourceMap); err != nil {
			return pipelineerr.NewBadPlanShapeError(err.Error()).WithNodeIndex(i)
		}
		// Expand is pure and knows nothing of this resource's own
		// globally-scoped causality id; preserve the id planlang.BuildPlanTree
		// minted for this slot rather than the (typically empty) meta Expand
		// returns for its own root.
		replaced, err := ft.Get(i)
		if err != nil {
			return fmt.Errorf("pipeline: slot %d missing after expansion: %w", i, err)
		}
		replaced.Meta = originalMeta

		wire, werr := updatestream.ToWireNode(expansion, marshalResource, marshalResource)
		if werr != nil {
			return werr
		}
		raw, merr := json.Marshal(wire)
		if merr != nil {
			return merr
		}
		if err := emit(updatestream.ResourcesNode(i, raw)); err != nil {
			return err
		}
	}

	return emit(updatestream.ResourcesComplete())
}

func groupResourceMap(r registry.Resource) *nodeData { return &nodeData{resource: r} }

// decodeRawValue parses plain JSON text into the plan language's untyped
// RawValue shape, since a run's entry-point parameters arrive as ordinary
// JSON from the CLI rather than as Starlark source.
func decodeRawValue(paramsJSON string) (paramschema.RawValue, error) {
	if paramsJSON == "" {
		return paramschema.RawMapValue(nil), nil
	}
	var v any
	if err := json.Unmarshal([]byte(paramsJSON), &v); err != nil {
		return paramschema.RawValue{}, fmt.Errorf("pipeline: invalid params JSON: %w", err)
	}
	return anyToRawValue(v), nil
}

func anyToRawValue(v any) paramschema.RawValue {
	switch val := v.(type) {
	case nil:
		return paramschema.RawNullValue()
	case bool:
		return paramschema.RawBoolValue(val)
	case float64:
		return paramschema.RawNumberValue(val)
	case string:
		return paramschema.RawStringValue(val)
	case []any:
		items := make([]span.Spanned[paramschema.RawValue], len(val))
		for i, item := range val {
			items[i] = span.New(anyToRawValue(item), span.Span{})
		}
		return paramschema.RawListValue(items...)
	case map[string]any:
		m := make(map[string]span.Spanned[paramschema.RawValue], len(val))
		for k, item := range val {
			m[k] = span.New(anyToRawValue(item), span.Span{})
		}
		return paramschema.RawMapValue(m)
	default:
		return paramschema.RawNullValue()
	}
}
