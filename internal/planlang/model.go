package planlang

import (
	"go.starlark.net/starlark"

	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/span"
)

// Plan is the projection of a loaded plan source's top-level shape: its
// declared name, version, parameter schema, and setup function.
type Plan struct {
	SourceID   string
	Name       string
	Version    string
	ParamTypes span.Spanned[paramschema.ParamType]
	Setup      *starlark.Function
	Thread     *starlark.Thread
}

// Item is one entry returned by a plan's setup() call, before it has been
// classified as a core-module leaf or a nested-plan reference.
type Item struct {
	Module string
	Params span.Spanned[paramschema.RawValue]
	ID     *string
	Before []string
	After  []string
}

// ResourceParams is a classified core-module plan item: a leaf of the
// resulting PlanTree, carrying its validated parameters.
type ResourceParams struct {
	Module string
	ID     *string
	Before []string
	After  []string
	Params span.Spanned[paramschema.Value]
}

// NestedPlanCall is a classified non-core plan item: a branch of the
// resulting PlanTree, referring to another plan loaded and expanded with
// its own freshly-minted id scope.
type NestedPlanCall struct {
	Module   string
	ID       *string
	Before   []string
	After    []string
	ScopeID  string
	PlanName string
}

// KindRegistry is the subset of the resource-type registry planlang needs:
// looking up a core module's parameter schema by its "@core/..." name.
type KindRegistry interface {
	Schema(module string) (span.Spanned[paramschema.ParamType], bool)
}
