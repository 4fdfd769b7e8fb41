package registry

import (
	"context"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/span"
	"github.com/driftless/driftless/internal/tree"
)

// ResourceType is the per-kind contract every built-in resource kind
// implements: a pure schema, a pure (no I/O) expansion into one or more
// atomic Resources, an I/O-performing probe, a pure diff, and a pure lower
// into executable Operations.
type ResourceType interface {
	// Module is this kind's "@core/..." identifier.
	Module() string

	// Schema returns the user-facing parameter schema.
	Schema() span.Spanned[paramschema.ParamType]

	// Expand turns a validated parameter bundle into the Tree of atomic
	// Resources it describes. Pure: no I/O.
	Expand(params paramschema.Value) (*tree.Node[Resource, Resource], error)

	// Probe reads the machine's current state for one atomic Resource.
	Probe(ctx context.Context, ex exec.Executor, resource Resource) (State, error)

	// Diff computes the change, if any, needed to bring resource's
	// observed state to the desired shape. Pure.
	Diff(resource Resource, state State) Change

	// Lower turns a Change into the Tree of Operations that realize it.
	// Pure.
	Lower(change Change) *tree.Node[operation.Operation, operation.Operation]
}

// Registry holds the built-in kinds keyed by their "@core/..." module
// string, and satisfies internal/planlang.KindRegistry.
type Registry struct {
	kinds map[string]ResourceType
}

// NewRegistry builds a Registry pre-populated with every built-in kind.
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]ResourceType)}
	for _, kind := range []ResourceType{
		&Apt{}, &Pacman{}, &File{}, &Command{}, &Git{}, &Service{},
	} {
		r.kinds[kind.Module()] = kind
	}
	return r
}

// Schema implements internal/planlang.KindRegistry.
func (r *Registry) Schema(module string) (span.Spanned[paramschema.ParamType], bool) {
	kind, ok := r.kinds[module]
	if !ok {
		return span.Spanned[paramschema.ParamType]{}, false
	}
	return kind.Schema(), true
}

// Lookup returns the ResourceType for a "@core/..." module string.
func (r *Registry) Lookup(module string) (ResourceType, bool) {
	kind, ok := r.kinds[module]
	return kind, ok
}

// RegisterExtension adds a non-core ResourceType — typically an
// *extpoint.Provider loaded from a WASM manifest — under its own module
// string. planlang looks up only "@core/"-prefixed module strings in the
// registry and treats any other module string as a nested plan path. A
// second registration under the same module string replaces the first.
func (r *Registry) RegisterExtension(kind ResourceType) {
	r.kinds[kind.Module()] = kind
}

// leafResource wraps a single atomic resource with no children.
func leafResource(kind Kind, meta tree.CausalityMeta, r Resource) *tree.Node[Resource, Resource] {
	m := meta
	return tree.NewLeaf[Resource, Resource](r, &m)
}

// groupResources wraps one or more sibling resource nodes under a
// synthetic, non-semantic branch root so Expand always returns a single
// Tree, per section 4.5.
func groupResources(nodes ...*tree.Node[Resource, Resource]) *tree.Node[Resource, Resource] {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return tree.NewBranch[Resource, Resource](groupResource(), nil, nodes...)
}

// leafOperation wraps a single operation with no children.
func leafOperation(meta tree.CausalityMeta, op operation.Operation) *tree.Node[operation.Operation, operation.Operation] {
	m := meta
	return tree.NewLeaf[operation.Operation, operation.Operation](op, &m)
}

// groupOperations wraps one or more sibling operation nodes under a
// synthetic branch root, matching groupResources.
func groupOperations(nodes ...*tree.Node[operation.Operation, operation.Operation]) *tree.Node[operation.Operation, operation.Operation] {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return tree.NewBranch[operation.Operation, operation.Operation](operation.GroupOperation(), nil, nodes...)
}
