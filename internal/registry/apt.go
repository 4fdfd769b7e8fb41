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

// AptResource names one package to ensure installed via apt.
type AptResource struct {
	Package string
}

// AptState is whether dpkg reports the package installed.
type AptState struct {
	Installed bool
}

// AptChange installs a package that dpkg reports as not installed.
type AptChange struct {
	Package string
}

// Apt is the @core/apt resource kind: ensure one or more Debian packages
// are installed, grounded on original_source/resource/src/resources/apt.rs.
type Apt struct{}

var _ ResourceType = (*Apt)(nil)

func (Apt) Module() string { return "@core/apt" }

func (Apt) Schema() span.Spanned[paramschema.ParamType] {
	pt := paramschema.Union(
		[]paramschema.Field{{Name: "package", Type: paramschema.String()}},
		[]paramschema.Field{{Name: "packages", Type: paramschema.List(paramschema.String())}},
	)
	return span.New(pt, span.Span{})
}

func (Apt) Expand(params paramschema.Value) (*tree.Node[Resource, Resource], error) {
	var packages []string
	if pkg, ok := optionalStringField(params, "package"); ok {
		packages = []string{pkg}
	} else {
		packages = stringListField(params, "packages")
	}

	nodes := make([]*tree.Node[Resource, Resource], len(packages))
	for i, pkg := range packages {
		nodes[i] = leafResource(KindApt, tree.CausalityMeta{}, Resource{Kind: KindApt, Apt: &AptResource{Package: pkg}})
	}
	return groupResources(nodes...), nil
}

func (Apt) Probe(ctx context.Context, ex exec.Executor, resource Resource) (State, error) {
	result, err := ex.Run(ctx, exec.RunParams{
		Command: "dpkg-query",
		Args:    []string{"-W", "-f=${Status}", resource.Apt.Package},
	})
	if err != nil {
		return State{}, err
	}

	installed := false
	if result.Succeeded() {
		parts := strings.Fields(result.Stdout)
		if len(parts) == 3 {
			switch parts[2] {
			case "installed":
				installed = true
			}
		}
	}
	return State{Kind: KindApt, Apt: &AptState{Installed: installed}}, nil
}

func (Apt) Diff(resource Resource, state State) Change {
	if state.Apt.Installed {
		return Change{Kind: KindApt, HasChange: false}
	}
	return Change{Kind: KindApt, HasChange: true, Apt: &AptChange{Package: resource.Apt.Package}}
}

func (Apt) Lower(change Change) *tree.Node[operation.Operation, operation.Operation] {
	update := leafOperation(tree.CausalityMeta{ID: "update"}, operation.AptUpdate())
	install := leafOperation(tree.CausalityMeta{After: []string{"update"}}, operation.AptInstall([]string{change.Apt.Package}))
	return groupOperations(update, install)
}
