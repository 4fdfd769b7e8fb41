package planlang

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/pipelineerr"
	"github.com/driftless/driftless/internal/planlang/source"
	"github.com/driftless/driftless/internal/span"
	"github.com/driftless/driftless/internal/system"
	"github.com/driftless/driftless/internal/tree"
)

const corePrefix = "@core/"

func sourceSpanFor(id source.ItemID) span.Span {
	return span.Span{SourceID: id.AbsolutePath}
}

// Load reads, parses, and evaluates the plan source at id, then projects
// its globals into a Plan. BadPlanShape is returned when a required
// top-level key is missing or is the wrong shape.
func Load(st source.Store, id source.ItemID) (*Plan, *pipelineerr.Error) {
	data, err := st.Read(id)
	if err != nil {
		return nil, pipelineerr.NewSourceReadError(err.Error(), err)
	}

	sourceSpan := sourceSpanFor(id)

	thread := &starlark.Thread{
		Name: id.AbsolutePath,
		Print: func(_ *starlark.Thread, msg string) {
			// Plan setup code has no interactive console; prints are
			// discarded rather than routed to a diagnostic channel.
		},
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
		"item":   starlark.NewBuiltin("item", builtinItem),
	}
	for name, val := range typeConstructors(sourceSpan) {
		predeclared[name] = val
	}

	globals, err := starlark.ExecFile(thread, id.AbsolutePath, data, predeclared)
	if err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return nil, pipelineerr.NewEvaluateError(evalErr.Backtrace(), err).WithSpan(sourceSpan)
		}
		return nil, pipelineerr.NewParseError(err.Error(), err).WithSpan(sourceSpan)
	}

	name, ok := globals["name"].(starlark.String)
	if !ok {
		return nil, pipelineerr.NewBadPlanShapeError("missing or non-string top-level \"name\"").WithSpan(sourceSpan)
	}
	version, ok := globals["version"].(starlark.String)
	if !ok {
		return nil, pipelineerr.NewBadPlanShapeError("missing or non-string top-level \"version\"").WithSpan(sourceSpan)
	}
	paramsVal, ok := globals["params"]
	if !ok {
		return nil, pipelineerr.NewBadPlanShapeError("missing top-level \"params\"").WithSpan(sourceSpan)
	}
	paramsPt, ok := paramsVal.(*ptypeValue)
	if !ok {
		return nil, pipelineerr.NewBadPlanShapeError("top-level \"params\" must be a param type (struct_()/union_())").WithSpan(sourceSpan)
	}
	setupFn, ok := globals["setup"].(*starlark.Function)
	if !ok {
		return nil, pipelineerr.NewBadPlanShapeError("missing or non-function top-level \"setup\"").WithSpan(sourceSpan)
	}

	return &Plan{
		SourceID:   id.AbsolutePath,
		Name:       string(name),
		Version:    string(version),
		ParamTypes: span.New(paramsPt.typ, sourceSpan),
		Setup:      setupFn,
		Thread:     thread,
	}, nil
}

// builtinItem constructs one raw plan item: item(module, params, id=None,
// before=None, after=None).
func builtinItem(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var module starlark.String
	var params starlark.Value = starlark.None
	var id starlark.Value = starlark.None
	var before starlark.Value = starlark.None
	var after starlark.Value = starlark.None

	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"module", &module, "params?", &params, "id?", &id, "before?", &before, "after?", &after); err != nil {
		return nil, err
	}

	fields := starlark.StringDict{
		"module": module,
		"params": params,
		"id":     id,
		"before": before,
		"after":  after,
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}

func stringListField(v starlark.Value) ([]string, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return []string{string(val)}, nil
	case *starlark.List:
		out := make([]string, val.Len())
		for i := 0; i < val.Len(); i++ {
			s, ok := val.Index(i).(starlark.String)
			if !ok {
				return nil, fmt.Errorf("expected a string at index %d", i)
			}
			out[i] = string(s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or list of strings, got %s", v.Type())
	}
}

func itemFromStarlark(v starlark.Value, sourceSpan span.Span) (Item, error) {
	st, ok := v.(*starlarkstruct.Struct)
	if !ok {
		return Item{}, fmt.Errorf("setup() must return a list of item(...) values, got %s", v.Type())
	}

	moduleAttr, err := st.Attr("module")
	if err != nil {
		return Item{}, fmt.Errorf("item is missing \"module\": %w", err)
	}
	module, ok := moduleAttr.(starlark.String)
	if !ok {
		return Item{}, fmt.Errorf("item \"module\" must be a string")
	}

	paramsAttr, err := st.Attr("params")
	if err != nil {
		paramsAttr = starlark.None
	}
	paramsRaw, err := toRawValue(paramsAttr, sourceSpan)
	if err != nil {
		return Item{}, fmt.Errorf("item %q params: %w", string(module), err)
	}

	var id *string
	if idAttr, err := st.Attr("id"); err == nil {
		if idStr, ok := idAttr.(starlark.String); ok {
			s := string(idStr)
			id = &s
		}
	}

	var before, after []string
	if beforeAttr, err := st.Attr("before"); err == nil {
		if before, err = stringListField(beforeAttr); err != nil {
			return Item{}, fmt.Errorf("item %q before: %w", string(module), err)
		}
	}
	if afterAttr, err := st.Attr("after"); err == nil {
		if after, err = stringListField(afterAttr); err != nil {
			return Item{}, fmt.Errorf("item %q after: %w", string(module), err)
		}
	}

	return Item{Module: string(module), Params: paramsRaw, ID: id, Before: before, After: after}, nil
}

func scopeID(parentScope, itemID string) string {
	if itemID == "" {
		itemID = uuid.NewString()
	}
	if parentScope == "" {
		return itemID
	}
	return parentScope + "/" + itemID
}

func scopeList(parentScope string, ids []string) []string {
	scoped := make([]string, len(ids))
	for i, id := range ids {
		scoped[i] = scopeID(parentScope, id)
	}
	return scoped
}

// BuildPlanTree loads and evaluates planID, validates params against its
// schema, invokes setup, and recursively builds the PlanTree described by
// section 4.4: branches are nested-plan calls, leaves are core-module
// ResourceParams. parentScope prefixes every id minted at this recursion
// frame so uniqueness holds across the fully flattened tree.
func BuildPlanTree(
	st source.Store,
	reg KindRegistry,
	planID source.ItemID,
	paramsRaw span.Spanned[paramschema.RawValue],
	sys system.System,
	parentScope string,
) (*tree.Node[NestedPlanCall, ResourceParams], *pipelineerr.Error) {
	plan, err := Load(st, planID)
	if err != nil {
		return nil, err
	}

	validatedParams, verr := paramschema.Validate(plan.ParamTypes, paramsRaw)
	if verr != nil {
		return nil, verr
	}

	paramsStarlark, convErr := valueToStarlark(validatedParams.Value)
	if convErr != nil {
		return nil, pipelineerr.NewEvaluateError(convErr.Error(), convErr).WithSpan(plan.ParamTypes.Span)
	}
	sysStarlark, convErr := rawMapToStarlark(sys.AsMap())
	if convErr != nil {
		return nil, pipelineerr.NewEvaluateError(convErr.Error(), convErr).WithSpan(plan.ParamTypes.Span)
	}

	result, callErr := starlark.Call(plan.Thread, plan.Setup, starlark.Tuple{paramsStarlark, sysStarlark}, nil)
	if callErr != nil {
		return nil, pipelineerr.NewEvaluateError(callErr.Error(), callErr).WithSpan(plan.ParamTypes.Span)
	}
	itemList, ok := result.(*starlark.List)
	if !ok {
		return nil, pipelineerr.NewBadPlanShapeError("setup() must return a list of item(...) values").WithSpan(plan.ParamTypes.Span)
	}

	sourceSpan := span.Span{SourceID: plan.SourceID}
	children := make([]*tree.Node[NestedPlanCall, ResourceParams], 0, itemList.Len())

	for i := 0; i < itemList.Len(); i++ {
		rawItem, convErr := itemFromStarlark(itemList.Index(i), sourceSpan)
		if convErr != nil {
			return nil, pipelineerr.NewBadPlanShapeError(convErr.Error()).WithSpan(sourceSpan)
		}

		effectiveID := scopeID(parentScope, valueOr(rawItem.ID, ""))
		before := scopeList(parentScope, rawItem.Before)
		after := scopeList(parentScope, rawItem.After)
		meta := tree.CausalityMeta{ID: effectiveID, Before: before, After: after}

		if strings.HasPrefix(rawItem.Module, corePrefix) {
			schema, found := reg.Schema(rawItem.Module)
			if !found {
				return nil, pipelineerr.NewUnknownCoreModuleError(rawItem.Module).WithSpan(sourceSpan)
			}
			validated, verr := paramschema.Validate(schema, rawItem.Params)
			if verr != nil {
				return nil, verr
			}
			leaf := ResourceParams{Module: rawItem.Module, ID: rawItem.ID, Before: before, After: after, Params: validated}
			node := tree.NewLeaf[NestedPlanCall, ResourceParams](leaf, &meta)
			children = append(children, node)
			continue
		}

		nestedID := source.ResolveRelative(plan.SourceID, rawItem.Module)
		childScope := effectiveID
		child, cerr := BuildPlanTree(st, reg, nestedID, rawItem.Params, sys, childScope)
		if cerr != nil {
			return nil, cerr
		}
		branch := NestedPlanCall{Module: rawItem.Module, ID: rawItem.ID, Before: before, After: after, ScopeID: childScope, PlanName: plan.Name}
		wrapped := tree.NewBranch[NestedPlanCall, ResourceParams](branch, &meta, child)
		children = append(children, wrapped)
	}

	rootMeta := tree.CausalityMeta{ID: parentScope}
	root := tree.NewBranch[NestedPlanCall, ResourceParams](
		NestedPlanCall{Module: planID.AbsolutePath, ScopeID: parentScope, PlanName: plan.Name},
		&rootMeta,
		children...,
	)
	return root, nil
}

func valueOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

func rawMapToStarlark(m map[string]any) (starlark.Value, error) {
	fields := make(starlark.StringDict, len(m))
	for k, v := range m {
		converted, err := anyToStarlark(v)
		if err != nil {
			return nil, err
		}
		fields[k] = converted
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}

func anyToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case string:
		return starlark.String(val), nil
	case map[string]any:
		return rawMapToStarlark(val)
	case time.Duration:
		return starlark.String(val.String()), nil
	default:
		return nil, fmt.Errorf("unsupported system field type %T", v)
	}
}
