package planlang

import (
	"fmt"
	"testing"

	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/planlang/source"
	"github.com/driftless/driftless/internal/span"
	"github.com/driftless/driftless/internal/system"
)

type memoryStore struct {
	files map[string][]byte
}

func (m *memoryStore) Read(id source.ItemID) ([]byte, error) {
	data, ok := m.files[id.AbsolutePath]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", id.AbsolutePath)
	}
	return data, nil
}

type fakeRegistry struct {
	schemas map[string]paramschema.ParamType
}

func (r *fakeRegistry) Schema(module string) (span.Spanned[paramschema.ParamType], bool) {
	t, ok := r.schemas[module]
	if !ok {
		return span.Spanned[paramschema.ParamType]{}, false
	}
	return span.New(t, span.Span{SourceID: module}), true
}

const simplePlanSource = `
name = "example"
version = "1.0.0"
params = struct_(package_name = string_)

def setup(params, system):
    return [item(module = "@core/apt", params = struct(name = params.package_name), id = "install")]
`

func TestLoad_ProjectsTopLevelShape(t *testing.T) {
	st := &memoryStore{files: map[string][]byte{"/plans/p.plan": []byte(simplePlanSource)}}

	plan, err := Load(st, source.ItemID{AbsolutePath: "/plans/p.plan"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Name != "example" || plan.Version != "1.0.0" {
		t.Errorf("unexpected plan shape: %+v", plan)
	}
	if plan.ParamTypes.Value.Kind != paramschema.KindStruct {
		t.Errorf("expected struct param schema, got %v", plan.ParamTypes.Value.Kind)
	}
}

func TestLoad_BadPlanShapeOnMissingSetup(t *testing.T) {
	st := &memoryStore{files: map[string][]byte{"/plans/p.plan": []byte(`
name = "example"
version = "1.0.0"
params = struct_()
`)}}

	_, err := Load(st, source.ItemID{AbsolutePath: "/plans/p.plan"})
	if err == nil {
		t.Fatal("expected a bad-plan-shape error for a missing setup()")
	}
}

func TestBuildPlanTree_ClassifiesCoreModuleLeaf(t *testing.T) {
	st := &memoryStore{files: map[string][]byte{"/plans/p.plan": []byte(simplePlanSource)}}
	reg := &fakeRegistry{schemas: map[string]paramschema.ParamType{
		"@core/apt": paramschema.Struct(paramschema.Field{Name: "name", Type: paramschema.String()}),
	}}

	params := span.New(paramschema.RawMapValue(map[string]span.Spanned[paramschema.RawValue]{
		"package_name": span.New(paramschema.RawStringValue("git"), span.Span{SourceID: "/plans/p.plan"}),
	}), span.Span{SourceID: "/plans/p.plan"})

	sys := system.System{Arch: "amd64", OS: "linux"}

	root, err := BuildPlanTree(st, reg, source.ItemID{AbsolutePath: "/plans/p.plan"}, params, sys, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !root.IsBranch() || len(root.Children) != 1 {
		t.Fatalf("expected one child under the plan root, got %+v", root)
	}
	leaf := root.Children[0]
	if !leaf.IsLeaf() {
		t.Fatalf("expected a leaf for the @core/apt item, got branch")
	}
	if leaf.Leaf.Module != "@core/apt" {
		t.Errorf("expected module @core/apt, got %q", leaf.Leaf.Module)
	}
	nameField, ok := leaf.Leaf.Params.Value.Struct["name"]
	if !ok || nameField.Value.Str != "git" {
		t.Errorf("expected validated name=git, got %+v", leaf.Leaf.Params.Value.Struct)
	}
}

func TestBuildPlanTree_UnknownCoreModule(t *testing.T) {
	st := &memoryStore{files: map[string][]byte{"/plans/p.plan": []byte(simplePlanSource)}}
	reg := &fakeRegistry{schemas: map[string]paramschema.ParamType{}}

	params := span.New(paramschema.RawMapValue(map[string]span.Spanned[paramschema.RawValue]{
		"package_name": span.New(paramschema.RawStringValue("git"), span.Span{SourceID: "/plans/p.plan"}),
	}), span.Span{SourceID: "/plans/p.plan"})

	_, err := BuildPlanTree(st, reg, source.ItemID{AbsolutePath: "/plans/p.plan"}, params, system.System{}, "")
	if err == nil {
		t.Fatal("expected an unknown-core-module error")
	}
}
