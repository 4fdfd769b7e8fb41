package extpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/span"
	"github.com/driftless/driftless/internal/tree"
)

const defaultCallTimeout = 10 * time.Second

// Provider is a non-core resource kind backed by a sandboxed WASM module. It
// implements registry.ResourceType by marshaling to/from JSON across the
// bridge, the same five verbs every built-in kind implements natively, so
// the registry can treat an extension module exactly like @core/apt or
// @core/file for everything except Apply — KindExtension
// operations are opaque to internal/operation.Apply and must be applied
// through this Provider's own Apply method instead.
type Provider struct {
	manifest *Manifest
	bridge   *bridge
}

// LoadProvider reads manifestPath, verifies the WASM module's checksum, and
// instantiates it inside a capability-gated wazero runtime.
func LoadProvider(ctx context.Context, manifestPath string, tempDir string) (*Provider, error) {
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	wasmModule, err := os.ReadFile(manifest.WasmPath())
	if err != nil {
		return nil, fmt.Errorf("extpoint: read module %s: %w", manifest.WasmPath(), err)
	}
	if !manifest.VerifyChecksum(wasmModule) {
		return nil, fmt.Errorf("extpoint: checksum mismatch for module %s", manifest.Module)
	}

	enforcer := newCapabilityEnforcer(manifest, tempDir)
	b, err := newBridge(ctx, manifest, wasmModule, enforcer, defaultCallTimeout)
	if err != nil {
		return nil, err
	}

	return &Provider{manifest: manifest, bridge: b}, nil
}

// Close tears down the provider's WASM runtime.
func (p *Provider) Close(ctx context.Context) error {
	return p.bridge.Close(ctx)
}

// Module implements registry.ResourceType.
func (p *Provider) Module() string { return p.manifest.Module }

// Schema implements registry.ResourceType by asking the module for its
// paramschema.ParamType as JSON.
func (p *Provider) Schema() span.Spanned[paramschema.ParamType] {
	out, err := p.bridge.call(context.Background(), p.bridge.schema, nil)
	if err != nil {
		return span.New(paramschema.ParamType{Kind: paramschema.KindNull}, span.Span{})
	}
	var pt paramschema.ParamType
	if err := json.Unmarshal(out, &pt); err != nil {
		return span.New(paramschema.ParamType{Kind: paramschema.KindNull}, span.Span{})
	}
	return span.New(pt, span.Span{})
}

// expandResult is the wire shape resource_expand returns: one atomic
// resource params blob per sibling the module wants expanded, mirroring
// the way apt/pacman/file expand a list field into several leaves.
type expandResult struct {
	Resources []json.RawMessage `json:"resources"`
}

// Expand implements registry.ResourceType.
func (p *Provider) Expand(params paramschema.Value) (*tree.Node[registry.Resource, registry.Resource], error) {
	input, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("extpoint: marshal params for %s: %w", p.manifest.Module, err)
	}

	out, err := p.bridge.call(context.Background(), p.bridge.expand, input)
	if err != nil {
		return nil, fmt.Errorf("extpoint: expand %s: %w", p.manifest.Module, err)
	}

	var result expandResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("extpoint: unmarshal expand result for %s: %w", p.manifest.Module, err)
	}
	if len(result.Resources) == 0 {
		return nil, fmt.Errorf("extpoint: %s expanded to zero resources", p.manifest.Module)
	}

	nodes := make([]*tree.Node[registry.Resource, registry.Resource], 0, len(result.Resources))
	for i, raw := range result.Resources {
		meta := tree.CausalityMeta{}
		if len(result.Resources) > 1 {
			meta.ID = fmt.Sprintf("%s-%d", p.manifest.Module, i)
		}
		resource := registry.Resource{
			Kind: registry.KindExtension,
			Extension: &registry.ExtensionResource{
				Module: p.manifest.Module,
				Params: raw,
			},
		}
		nodes = append(nodes, tree.NewLeaf[registry.Resource, registry.Resource](resource, &meta))
	}

	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return tree.NewBranch[registry.Resource, registry.Resource](
		registry.Resource{Kind: registry.KindGroup}, nil, nodes...,
	), nil
}

// Probe implements registry.ResourceType.
func (p *Provider) Probe(ctx context.Context, ex exec.Executor, resource registry.Resource) (registry.State, error) {
	if resource.Kind != registry.KindExtension || resource.Extension == nil {
		return registry.State{}, fmt.Errorf("extpoint: probe called with non-extension resource for %s", p.manifest.Module)
	}

	out, err := p.bridge.call(ctx, p.bridge.probe, resource.Extension.Params)
	if err != nil {
		return registry.State{}, fmt.Errorf("extpoint: probe %s: %w", p.manifest.Module, err)
	}

	return registry.State{
		Kind:      registry.KindExtension,
		Extension: &registry.ExtensionState{Raw: out},
	}, nil
}

// diffInput pairs a resource's desired params with its observed state, the
// input resource_diff expects.
type diffInput struct {
	Params json.RawMessage `json:"params"`
	State  json.RawMessage `json:"state"`
}

// diffResult is the wire shape resource_diff returns.
type diffResult struct {
	HasChange bool            `json:"has_change"`
	Change    json.RawMessage `json:"change"`
}

// Diff implements registry.ResourceType.
func (p *Provider) Diff(resource registry.Resource, state registry.State) registry.Change {
	if resource.Kind != registry.KindExtension || resource.Extension == nil {
		return registry.Change{Kind: registry.KindGroup}
	}

	var stateRaw json.RawMessage
	if state.Extension != nil {
		stateRaw = state.Extension.Raw
	}

	input, err := json.Marshal(diffInput{Params: resource.Extension.Params, State: stateRaw})
	if err != nil {
		return registry.Change{Kind: registry.KindExtension, HasChange: false}
	}

	out, err := p.bridge.call(context.Background(), p.bridge.diff, input)
	if err != nil {
		return registry.Change{Kind: registry.KindExtension, HasChange: false}
	}

	var result diffResult
	if err := json.Unmarshal(out, &result); err != nil || !result.HasChange {
		return registry.Change{Kind: registry.KindExtension, HasChange: false}
	}

	return registry.Change{
		Kind:      registry.KindExtension,
		HasChange: true,
		Extension: &registry.ExtensionChange{Raw: result.Change},
	}
}

// lowerResult is the wire shape resource_lower returns: one operation per
// step, each with its own causality id/after list, mirroring git's
// fetch-then-checkout pair.
type lowerStep struct {
	ID    string          `json:"id,omitempty"`
	After []string        `json:"after,omitempty"`
	Raw   json.RawMessage `json:"op"`
}

type lowerResult struct {
	Steps []lowerStep `json:"steps"`
}

// Lower implements registry.ResourceType.
func (p *Provider) Lower(change registry.Change) *tree.Node[operation.Operation, operation.Operation] {
	if change.Kind != registry.KindExtension || change.Extension == nil {
		return tree.NewLeaf[operation.Operation, operation.Operation](operation.GroupOperation(), &tree.CausalityMeta{})
	}

	out, err := p.bridge.call(context.Background(), p.bridge.lower, change.Extension.Raw)
	if err != nil {
		return tree.NewLeaf[operation.Operation, operation.Operation](operation.GroupOperation(), &tree.CausalityMeta{})
	}

	var result lowerResult
	if err := json.Unmarshal(out, &result); err != nil || len(result.Steps) == 0 {
		return tree.NewLeaf[operation.Operation, operation.Operation](operation.GroupOperation(), &tree.CausalityMeta{})
	}

	nodes := make([]*tree.Node[operation.Operation, operation.Operation], 0, len(result.Steps))
	for _, step := range result.Steps {
		meta := tree.CausalityMeta{ID: step.ID, After: step.After}
		op := operation.ExtensionApply(p.manifest.Module, step.Raw)
		nodes = append(nodes, tree.NewLeaf[operation.Operation, operation.Operation](op, &meta))
	}

	if len(nodes) == 1 {
		return nodes[0]
	}
	return tree.NewBranch[operation.Operation, operation.Operation](
		operation.GroupOperation(), nil, nodes...,
	)
}

// Apply runs one extension Operation by calling the module's resource_apply
// export with the step payload resource_lower produced. This is the one
// place the WASM contract needs a sixth verb beyond the ResourceType
// interface's five: Lower only describes what should happen, and for the
// built-in kinds internal/operation.Apply is what actually performs it
// against internal/exec.Executor. For an extension kind the WASM sandbox
// plays that executor's role, so Apply calls back into the module instead of
// internal/exec. The pipeline orchestrator calls this method directly for
// any operation.Operation with Kind == operation.KindExtension, instead of
// operation.Apply.
func (p *Provider) Apply(ctx context.Context, op operation.Operation) (operation.Result, error) {
	if op.Kind != operation.KindExtension || op.Extension == nil {
		return operation.Result{}, fmt.Errorf("extpoint: Apply called with non-extension operation")
	}
	if op.Extension.Module != p.manifest.Module {
		return operation.Result{}, fmt.Errorf("extpoint: operation module %q does not match provider %q", op.Extension.Module, p.manifest.Module)
	}

	out, err := p.bridge.call(ctx, p.bridge.apply, op.Extension.Raw)
	if err != nil {
		return operation.Result{}, fmt.Errorf("extpoint: apply %s: %w", p.manifest.Module, err)
	}

	var result struct {
		ExitCode int `json:"exit_code"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return operation.Result{}, fmt.Errorf("extpoint: unmarshal apply result for %s: %w", p.manifest.Module, err)
	}
	return operation.Result{ExitCode: result.ExitCode}, nil
}
