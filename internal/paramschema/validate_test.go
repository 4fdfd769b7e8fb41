package paramschema

import (
	"testing"

	"github.com/driftless/driftless/internal/pipelineerr"
	"github.com/driftless/driftless/internal/span"
)

func sp(sourceID string) span.Span { return span.Span{SourceID: sourceID} }

// S4 HostPath: a relative string resolves against the span source's
// directory; an absolute input is rejected.
func TestValidate_S4HostPathResolvesRelative(t *testing.T) {
	pt := span.Spanned[ParamType]{Value: HostPath()}
	raw := span.New(RawStringValue("./a/b"), sp("/plans/p.plan"))

	got, err := Validate(pt, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value.Str != "/plans/a/b" {
		t.Errorf("expected resolved path /plans/a/b, got %q", got.Value.Str)
	}
}

func TestValidate_S4HostPathRejectsAbsolute(t *testing.T) {
	pt := span.Spanned[ParamType]{Value: HostPath()}
	raw := span.New(RawStringValue("/etc/x"), sp("/plans/p.plan"))

	_, err := Validate(pt, raw)
	if err == nil {
		t.Fatal("expected a validation error for an absolute host-path input")
	}
	if !pipelineerr.IsKind(err, pipelineerr.KindParamValidation) {
		t.Errorf("expected KindParamValidation, got %v", err.Kind)
	}
}

func TestValidate_TargetPathRequiresAbsolute(t *testing.T) {
	pt := span.Spanned[ParamType]{Value: TargetPath()}

	ok := span.New(RawStringValue("/etc/x"), sp("src"))
	got, err := Validate(pt, ok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value.Str != "/etc/x" {
		t.Errorf("expected verbatim /etc/x, got %q", got.Value.Str)
	}

	bad := span.New(RawStringValue("rel/x"), sp("src"))
	if _, err := Validate(pt, bad); err == nil {
		t.Fatal("expected a validation error for a relative target-path input")
	}
}

func TestValidate_IntRejectsNonIntegralNumber(t *testing.T) {
	pt := span.Spanned[ParamType]{Value: Int()}
	raw := span.New(RawNumberValue(1.5), sp("src"))

	if _, err := Validate(pt, raw); err == nil {
		t.Fatal("expected numeric narrowing to be rejected")
	}

	whole := span.New(RawNumberValue(3), sp("src"))
	got, err := Validate(pt, whole)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value.Int != 3 {
		t.Errorf("expected int value 3, got %d", got.Value.Int)
	}
}

func TestValidate_StructMissingRequiredField(t *testing.T) {
	pt := span.Spanned[ParamType]{Value: Struct(Field{Name: "name", Type: String()})}
	raw := span.New(RawMapValue(map[string]span.Spanned[RawValue]{}), sp("src"))

	_, err := Validate(pt, raw)
	if err == nil {
		t.Fatal("expected a missing-field error")
	}
	if err.Path != "name" {
		t.Errorf("expected field path %q, got %q", "name", err.Path)
	}
}

func TestValidate_StructUnknownFieldRejected(t *testing.T) {
	pt := span.Spanned[ParamType]{Value: Struct(Field{Name: "name", Type: String()})}
	raw := span.New(RawMapValue(map[string]span.Spanned[RawValue]{
		"name":  span.New(RawStringValue("x"), sp("src")),
		"extra": span.New(RawStringValue("y"), sp("src")),
	}), sp("src"))

	if _, err := Validate(pt, raw); err == nil {
		t.Fatal("expected an unknown-field error")
	}
}

func TestValidate_StructOptionalFieldTakesDefault(t *testing.T) {
	defaultValue := span.New(Value{Kind: KindBool, Bool: true}, sp("src"))
	pt := span.Spanned[ParamType]{Value: Struct(
		Field{Name: "name", Type: String()},
		Field{Name: "enabled", Type: Bool(), Optional: true, Default: &defaultValue},
	)}
	raw := span.New(RawMapValue(map[string]span.Spanned[RawValue]{
		"name": span.New(RawStringValue("x"), sp("src")),
	}), sp("src"))

	got, err := Validate(pt, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enabled, ok := got.Value.Struct["enabled"]
	if !ok || !enabled.Value.Bool {
		t.Errorf("expected defaulted enabled=true, got %+v", got.Value.Struct)
	}
}

// S5 Union discrimination: two cases both requiring "path", one requiring
// "source" and the other "content". A value carrying "source" selects the
// source case.
func TestValidate_S5UnionDiscrimination(t *testing.T) {
	sourceCase := []Field{
		{Name: "kind", Type: String()},
		{Name: "source", Type: String()},
		{Name: "path", Type: TargetPath()},
	}
	contentCase := []Field{
		{Name: "kind", Type: String()},
		{Name: "content", Type: String()},
		{Name: "path", Type: TargetPath()},
	}
	pt := span.Spanned[ParamType]{Value: Union(sourceCase, contentCase)}

	raw := span.New(RawMapValue(map[string]span.Spanned[RawValue]{
		"kind":   span.New(RawStringValue("source"), sp("src")),
		"source": span.New(RawStringValue("./f"), sp("src")),
		"path":   span.New(RawStringValue("/etc/f"), sp("src")),
	}), sp("src"))

	got, err := Validate(pt, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got.Value.Struct["source"]; !ok {
		t.Errorf("expected the source case to be selected, got %+v", got.Value.Struct)
	}
}

func TestValidate_UnionAmbiguousWhenIntersectionTies(t *testing.T) {
	caseA := []Field{{Name: "a", Type: String(), Optional: true}, {Name: "shared", Type: String()}}
	caseB := []Field{{Name: "b", Type: String(), Optional: true}, {Name: "shared", Type: String()}}
	pt := span.Spanned[ParamType]{Value: Union(caseA, caseB)}

	raw := span.New(RawMapValue(map[string]span.Spanned[RawValue]{
		"shared": span.New(RawStringValue("x"), sp("src")),
	}), sp("src"))

	if _, err := Validate(pt, raw); err == nil {
		t.Fatal("expected an ambiguous-union error when two cases match equally well")
	}
}

func TestValidate_UnionNoCaseMatches(t *testing.T) {
	caseA := []Field{{Name: "a", Type: String()}}
	pt := span.Spanned[ParamType]{Value: Union(caseA)}

	raw := span.New(RawMapValue(map[string]span.Spanned[RawValue]{
		"b": span.New(RawStringValue("x"), sp("src")),
	}), sp("src"))

	if _, err := Validate(pt, raw); err == nil {
		t.Fatal("expected a no-matching-case error")
	}
}

func TestValidate_ListValidatesElementsAndCarriesIndexPath(t *testing.T) {
	pt := span.Spanned[ParamType]{Value: List(Int())}
	raw := span.New(RawListValue(
		span.New(RawNumberValue(1), sp("src")),
		span.New(RawNumberValue(1.2), sp("src")),
	), sp("src"))

	_, err := Validate(pt, raw)
	if err == nil {
		t.Fatal("expected the second element to fail validation")
	}
	if err.Path != "[1]" {
		t.Errorf("expected path [1], got %q", err.Path)
	}
}
