// Package pipeline is the orchestrator spine: it drives one plan through
// ResourceParams -> Resources -> States -> Changes -> Operations -> (policy
// gate) -> Apply, persisting the Idle->...->Done|Failed run state machine
// through internal/store/run and emitting internal/updatestream records for
// every stage and node along the way.
package pipeline

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/planlang"
	"github.com/driftless/driftless/internal/planlang/source"
	"github.com/driftless/driftless/internal/policy"
	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/registry/extpoint"
	"github.com/driftless/driftless/internal/store/run"
	"github.com/driftless/driftless/internal/transport/ssh"
	"github.com/driftless/driftless/internal/tree"
	"github.com/driftless/driftless/internal/updatestream"

	execpkg "github.com/driftless/driftless/internal/exec"
)

// configValidator is shared across every Config.Validate call, matching
// CUEParser's single long-lived *validator.Validate.
var configValidator = validator.New()

// Config is the typed invocation surface a cmd/ entrypoint builds from CLI
// flags/TOML before handing a run to the engine. CLI argument parsing and
// TOML loading themselves stay out of scope; once the values reach this
// struct, they are validated with struct tags the same way CUEParser
// validates a ResourceConfig.
type Config struct {
	RootPath   string `validate:"required,dir"`
	PlanID     string `validate:"required"`
	ParamsJSON string `validate:"omitempty,json"`
	LogLevel   string `validate:"required,oneof=trace debug info warn error fatal"`
}

// Validate checks the invocation-surface config with struct tags, the way
// CUEParser.Evaluate validates each ResourceConfig before accepting it.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("pipeline: invalid config: %w", err)
	}
	return nil
}

// TransportKind selects how operations reach the machine being configured.
type TransportKind string

const (
	TransportLocal TransportKind = "local"
	TransportSSH   TransportKind = "ssh"
)

// Target describes the machine a run applies against.
type Target struct {
	Name      string
	Transport TransportKind
	SSH       *ssh.Config
}

// Executor builds the internal/exec.Executor this Target runs operations
// through. An SSH target's Executor owns a pooled connection; the caller
// closes it once the run is done, following a one-connection-per-target-
// per-run lifecycle.
func (t Target) Executor() (execpkg.Executor, func() error, error) {
	switch t.Transport {
	case TransportSSH:
		if t.SSH == nil {
			return nil, nil, fmt.Errorf("pipeline: ssh target %q missing ssh config", t.Name)
		}
		ex, err := ssh.NewExecutor(t.SSH)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline: building ssh executor for %q: %w", t.Name, err)
		}
		return ex, ex.Close, nil
	case TransportLocal, "":
		return execpkg.NewLocalExecutor(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("pipeline: unknown transport %q", t.Transport)
	}
}

// Params is the input to one run: which plan, with what arguments, rooted
// where.
type Params struct {
	RootPath   string
	PlanID     string
	ParamsJSON string
}

// Options configures a run's dependencies. Store may be nil (a valid no-op
// per internal/store/run's contract); PolicyEngine may be nil, in which case
// the policy gate is skipped entirely.
type Options struct {
	Registry     *registry.Registry
	SourceStore  source.Store
	Target       Target
	PolicyEngine *policy.Engine
	PolicyMode   policy.Mode
	Environment  string
	Operator     string
	DryRun       bool
	MaxParallel  int
	Writer       RecordWriter
	Store        run.Store
	Extensions   []*extpoint.Provider
}

// RecordWriter receives every updatestream.Record a run produces, in order.
// Implementations must be safe for concurrent use: the States stage emits
// from a worker pool.
type RecordWriter interface {
	Write(rec updatestream.Record) error
}

// nodeData is the per-slot mutable payload threaded through every stage's
// tree.FlatTree. Only the Resources stage restructures the tree (via
// tree.ReplaceSubtree); every later stage mutates a slot's nodeData fields
// in place by index, matching internal/updatestream's replay contract.
type nodeData struct {
	// pendingParams is set on a leaf minted directly from the PlanTree,
	// before the Resources stage has expanded it.
	pendingParams *planlang.ResourceParams

	// resource is the atomic (or synthetic KindGroup) resource this slot
	// holds once expanded.
	resource registry.Resource

	state  *registry.State
	change *registry.Change
	ops    *tree.Node[operation.Operation, operation.Operation]
}

// Result is the outcome of one Run call.
type Result struct {
	RunID  string
	Status string
	Err    error
}

// isGroup reports whether a slot is a synthetic wrapper node (a nested-plan
// branch, or a multi-child Expand() wrapper) rather than an atomic,
// probe/diff/lower-able resource.
func isGroup(nd *nodeData) bool {
	return nd.pendingParams == nil && nd.resource.Kind == registry.KindGroup
}
