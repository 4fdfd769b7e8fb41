package registry

import (
	"context"
	"strings"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/span"
	"github.com/driftless/driftless/internal/tree"
)

// PacmanResource names one package to ensure installed via pacman.
type PacmanResource struct {
	Package string
}

// PacmanState is whether pacman reports the package installed.
type PacmanState struct {
	Installed bool
}

// PacmanChange installs a package pacman reports as not installed.
type PacmanChange struct {
	Package string
}

// Pacman is the @core/pacman resource kind: ensure one or more Arch
// packages are installed, grounded on
// original_source/resource/src/resources/pacman.rs.
type Pacman struct{}

var _ ResourceType = (*Pacman)(nil)

func (Pacman) Module() string { return "@core/pacman" }

func (Pacman) Schema() span.Spanned[paramschema.ParamType] {
	pt := paramschema.Union(
		[]paramschema.Field{{Name: "package", Type: paramschema.String()}},
		[]paramschema.Field{{Name: "packages", Type: paramschema.List(paramschema.String())}},
	)
	return span.New(pt, span.Span{})
}

func (Pacman) Expand(params paramschema.Value) (*tree.Node[Resource, Resource], error) {
	var packages []string
	if pkg, ok := optionalStringField(params, "package"); ok {
		packages = []string{pkg}
	} else {
		packages = stringListField(params, "packages")
	}

	nodes := make([]*tree.Node[Resource, Resource], len(packages))
	for i, pkg := range packages {
		nodes[i] = leafResource(KindPacman, tree.CausalityMeta{}, Resource{Kind: KindPacman, Pacman: &PacmanResource{Package: pkg}})
	}
	return groupResources(nodes...), nil
}

func (Pacman) Probe(ctx context.Context, ex exec.Executor, resource Resource) (State, error) {
	result, err := ex.Run(ctx, exec.RunParams{
		Command: "pacman",
		Args:    []string{"-Q", resource.Pacman.Package},
	})
	if err != nil {
		return State{}, err
	}
	installed := result.Succeeded() && strings.TrimSpace(result.Stdout) != ""
	return State{Kind: KindPacman, Pacman: &PacmanState{Installed: installed}}, nil
}

func (Pacman) Diff(resource Resource, state State) Change {
	if state.Pacman.Installed {
		return Change{Kind: KindPacman, HasChange: false}
	}
	return Change{Kind: KindPacman, HasChange: true, Pacman: &PacmanChange{Package: resource.Pacman.Package}}
}

func (Pacman) Lower(change Change) *tree.Node[operation.Operation, operation.Operation] {
	upgrade := leafOperation(tree.CausalityMeta{ID: "upgrade"}, operation.PacmanUpgrade())
	install := leafOperation(tree.CausalityMeta{After: []string{"upgrade"}}, operation.PacmanInstall([]string{change.Pacman.Package}))
	return groupOperations(upgrade, install)
}
