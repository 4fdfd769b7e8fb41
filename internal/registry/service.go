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

// ServiceResource declares the desired running or enabled status of one
// systemd unit. At most one of Running/Enabled is set (neither, when the
// params give neither); a resource that names both is expanded into two
// sibling leaves so each aspect gets its own Probe/Diff/Change independently.
type ServiceResource struct {
	Name    string
	Running *bool
	Enabled *bool
}

// ServiceState is what systemctl currently reports for the unit.
type ServiceState struct {
	Running bool
	Enabled bool
}

// ServiceChangeKind discriminates the ServiceChange variants.
type ServiceChangeKind string

const (
	ServiceChangeStart   ServiceChangeKind = "start"
	ServiceChangeStop    ServiceChangeKind = "stop"
	ServiceChangeEnable  ServiceChangeKind = "enable"
	ServiceChangeDisable ServiceChangeKind = "disable"
)

// ServiceChange is one systemctl action needed to close the gap between a
// ServiceResource and its ServiceState. A resource may need both a
// run-state and an enable-state change, in which case Expand produces two
// sibling leaves so each gets its own Change/Operation.
type ServiceChange struct {
	ChangeKind ServiceChangeKind
	Name       string
}

// Service is the @core/service resource kind: ensure a systemd unit is
// running and/or enabled at boot.
type Service struct{}

var _ ResourceType = (*Service)(nil)

func (Service) Module() string { return "@core/service" }

func (Service) Schema() span.Spanned[paramschema.ParamType] {
	pt := paramschema.Struct(
		paramschema.Field{Name: "name", Type: paramschema.String()},
		paramschema.Field{Name: "running", Type: paramschema.Bool(), Optional: true},
		paramschema.Field{Name: "enabled", Type: paramschema.Bool(), Optional: true},
	)
	return span.New(pt, span.Span{})
}

func (Service) Expand(params paramschema.Value) (*tree.Node[Resource, Resource], error) {
	name := stringField(params, "name")

	var nodes []*tree.Node[Resource, Resource]
	if v, ok := field(params, "running"); ok {
		b := v.Bool
		r := Resource{Kind: KindService, Service: &ServiceResource{Name: name, Running: &b}}
		nodes = append(nodes, leafResource(KindService, tree.CausalityMeta{}, r))
	}
	if v, ok := field(params, "enabled"); ok {
		b := v.Bool
		r := Resource{Kind: KindService, Service: &ServiceResource{Name: name, Enabled: &b}}
		nodes = append(nodes, leafResource(KindService, tree.CausalityMeta{}, r))
	}
	if len(nodes) == 0 {
		r := Resource{Kind: KindService, Service: &ServiceResource{Name: name}}
		nodes = append(nodes, leafResource(KindService, tree.CausalityMeta{}, r))
	}
	return groupResources(nodes...), nil
}

func (Service) Probe(ctx context.Context, ex exec.Executor, resource Resource) (State, error) {
	name := resource.Service.Name

	activeResult, err := ex.Run(ctx, exec.RunParams{Command: "systemctl", Args: []string{"is-active", name}})
	if err != nil {
		return State{}, err
	}
	enabledResult, err := ex.Run(ctx, exec.RunParams{Command: "systemctl", Args: []string{"is-enabled", name}})
	if err != nil {
		return State{}, err
	}

	return State{Kind: KindService, Service: &ServiceState{
		Running: strings.TrimSpace(activeResult.Stdout) == "active",
		Enabled: strings.TrimSpace(enabledResult.Stdout) == "enabled",
	}}, nil
}

func (Service) Diff(resource Resource, state State) Change {
	sr := resource.Service
	ss := state.Service

	if sr.Running != nil && *sr.Running != ss.Running {
		kind := ServiceChangeStart
		if !*sr.Running {
			kind = ServiceChangeStop
		}
		return Change{Kind: KindService, HasChange: true, Service: &ServiceChange{ChangeKind: kind, Name: sr.Name}}
	}
	if sr.Enabled != nil && *sr.Enabled != ss.Enabled {
		kind := ServiceChangeEnable
		if !*sr.Enabled {
			kind = ServiceChangeDisable
		}
		return Change{Kind: KindService, HasChange: true, Service: &ServiceChange{ChangeKind: kind, Name: sr.Name}}
	}
	return Change{Kind: KindService, HasChange: false}
}

func (Service) Lower(change Change) *tree.Node[operation.Operation, operation.Operation] {
	sc := change.Service
	action := map[ServiceChangeKind]string{
		ServiceChangeStart:   "start",
		ServiceChangeStop:    "stop",
		ServiceChangeEnable:  "enable",
		ServiceChangeDisable: "disable",
	}[sc.ChangeKind]
	return leafOperation(tree.CausalityMeta{}, operation.ServiceAction(sc.Name, action))
}
