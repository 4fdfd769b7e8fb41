package registry

import (
	"context"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/span"
	"github.com/driftless/driftless/internal/tree"
)

// CommandAction discriminates whether a command resource's job is to
// install or uninstall something by running an arbitrary shell command.
type CommandAction string

const (
	CommandActionInstall   CommandAction = "install"
	CommandActionUninstall CommandAction = "uninstall"
)

// CommandResource runs an install or uninstall shell command, optionally
// gated by an is-installed probe command.
type CommandResource struct {
	Action      CommandAction
	IsInstalled string
	Install     string
	Uninstall   string
}

// CommandProbeState is the outcome of running IsInstalled.
type CommandProbeState string

const (
	CommandInstalled    CommandProbeState = "installed"
	CommandNotInstalled CommandProbeState = "not-installed"
	CommandUnknown      CommandProbeState = "unknown"
)

// CommandState wraps the probe outcome.
type CommandState struct {
	Probe CommandProbeState
}

// CommandChange runs one of the resource's configured commands.
type CommandChange struct {
	Command string
}

// Command is the @core/command resource kind: ensure a piece of software
// is installed or removed via arbitrary shell commands, grounded on
// original_source/resource/src/resources/command.rs. Unlike the original's
// serde "status" tag, the install/uninstall case is discriminated
// structurally by which of "install"/"uninstall" is the required field —
// this schema algebra has no literal-value discriminator, only best-fit
// over field keys (section 4.3).
type Command struct{}

var _ ResourceType = (*Command)(nil)

func (Command) Module() string { return "@core/command" }

func (Command) Schema() span.Spanned[paramschema.ParamType] {
	pt := paramschema.Union(
		[]paramschema.Field{
			{Name: "install", Type: paramschema.String()},
			{Name: "is_installed", Type: paramschema.String(), Optional: true},
			{Name: "uninstall", Type: paramschema.String(), Optional: true},
		},
		[]paramschema.Field{
			{Name: "uninstall", Type: paramschema.String()},
			{Name: "is_installed", Type: paramschema.String(), Optional: true},
			{Name: "install", Type: paramschema.String(), Optional: true},
		},
	)
	return span.New(pt, span.Span{})
}

func (Command) Expand(params paramschema.Value) (*tree.Node[Resource, Resource], error) {
	isInstalled, _ := optionalStringField(params, "is_installed")
	install, hasInstall := optionalStringField(params, "install")
	uninstall, hasUninstall := optionalStringField(params, "uninstall")

	action := CommandActionInstall
	if !hasInstall && hasUninstall {
		action = CommandActionUninstall
	}

	resource := Resource{Kind: KindCommand, Command: &CommandResource{
		Action:      action,
		IsInstalled: isInstalled,
		Install:     install,
		Uninstall:   uninstall,
	}}
	return leafResource(KindCommand, tree.CausalityMeta{}, resource), nil
}

func (Command) Probe(ctx context.Context, ex exec.Executor, resource Resource) (State, error) {
	cr := resource.Command
	if cr.IsInstalled == "" {
		return State{Kind: KindCommand, Command: &CommandState{Probe: CommandUnknown}}, nil
	}

	result, err := ex.Run(ctx, exec.RunParams{Command: "/bin/sh", Args: []string{"-c", cr.IsInstalled}})
	if err != nil {
		return State{}, err
	}
	if result.Succeeded() {
		return State{Kind: KindCommand, Command: &CommandState{Probe: CommandInstalled}}, nil
	}
	return State{Kind: KindCommand, Command: &CommandState{Probe: CommandNotInstalled}}, nil
}

func (Command) Diff(resource Resource, state State) Change {
	cr := resource.Command
	switch cr.Action {
	case CommandActionInstall:
		if state.Command.Probe == CommandInstalled {
			return Change{Kind: KindCommand, HasChange: false}
		}
		return Change{Kind: KindCommand, HasChange: true, Command: &CommandChange{Command: cr.Install}}
	case CommandActionUninstall:
		if state.Command.Probe == CommandNotInstalled {
			return Change{Kind: KindCommand, HasChange: false}
		}
		return Change{Kind: KindCommand, HasChange: true, Command: &CommandChange{Command: cr.Uninstall}}
	default:
		return Change{Kind: KindCommand, HasChange: false}
	}
}

func (Command) Lower(change Change) *tree.Node[operation.Operation, operation.Operation] {
	op := operation.RunCommand(change.Command.Command)
	return leafOperation(tree.CausalityMeta{}, op)
}
