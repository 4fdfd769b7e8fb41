package paramschema

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/driftless/driftless/internal/pipelineerr"
	"github.com/driftless/driftless/internal/span"
)

// Validate matches raw against pt and returns its fully-typed image, or a
// *pipelineerr.Error (Kind: KindParamValidation) naming the failing field
// path, the expected shape, and the observed shape.
func Validate(pt span.Spanned[ParamType], raw span.Spanned[RawValue]) (span.Spanned[Value], *pipelineerr.Error) {
	return validateAt("", pt, raw)
}

func validateAt(path string, pt span.Spanned[ParamType], raw span.Spanned[RawValue]) (span.Spanned[Value], *pipelineerr.Error) {
	typ := pt.Value
	rv := raw.Value

	switch typ.Kind {
	case KindBool:
		if rv.Kind != KindBool {
			return span.Spanned[Value]{}, mismatch(path, "bool", rv, raw.Span)
		}
		return span.New(Value{Kind: KindBool, Bool: rv.Bool}, raw.Span), nil

	case KindInt:
		if rv.Kind != KindFloat {
			return span.Spanned[Value]{}, mismatch(path, "int", rv, raw.Span)
		}
		if math.Trunc(rv.Number) != rv.Number {
			return span.Spanned[Value]{}, pipelineerr.NewParamValidationError(path, "int", fmt.Sprintf("non-integral number %v", rv.Number), &raw.Span)
		}
		return span.New(Value{Kind: KindInt, Int: int64(rv.Number)}, raw.Span), nil

	case KindFloat:
		if rv.Kind != KindFloat {
			return span.Spanned[Value]{}, mismatch(path, "float", rv, raw.Span)
		}
		return span.New(Value{Kind: KindFloat, Float: rv.Number}, raw.Span), nil

	case KindString:
		if rv.Kind != KindString {
			return span.Spanned[Value]{}, mismatch(path, "string", rv, raw.Span)
		}
		return span.New(Value{Kind: KindString, Str: rv.Str}, raw.Span), nil

	case KindHostPath:
		if rv.Kind != KindString {
			return span.Spanned[Value]{}, mismatch(path, "host-path (relative string)", rv, raw.Span)
		}
		if filepath.IsAbs(rv.Str) {
			return span.Spanned[Value]{}, pipelineerr.NewParamValidationError(path, "host-path (relative string)", fmt.Sprintf("absolute string %q", rv.Str), &raw.Span)
		}
		dir := filepath.Dir(raw.Span.SourceID)
		resolved := filepath.Clean(filepath.Join(dir, rv.Str))
		return span.New(Value{Kind: KindHostPath, Str: resolved}, raw.Span), nil

	case KindTargetPath:
		if rv.Kind != KindString {
			return span.Spanned[Value]{}, mismatch(path, "target-path (absolute string)", rv, raw.Span)
		}
		if !filepath.IsAbs(rv.Str) {
			return span.Spanned[Value]{}, pipelineerr.NewParamValidationError(path, "target-path (absolute string)", fmt.Sprintf("relative string %q", rv.Str), &raw.Span)
		}
		return span.New(Value{Kind: KindTargetPath, Str: rv.Str}, raw.Span), nil

	case KindList:
		if rv.Kind != KindList {
			return span.Spanned[Value]{}, mismatch(path, "list", rv, raw.Span)
		}
		items := make([]span.Spanned[Value], len(rv.List))
		for i, item := range rv.List {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			validated, err := validateAt(itemPath, span.Spanned[ParamType]{Value: *typ.Item, Span: pt.Span}, item)
			if err != nil {
				return span.Spanned[Value]{}, err
			}
			items[i] = validated
		}
		return span.New(Value{Kind: KindList, List: items}, raw.Span), nil

	case KindMap:
		if rv.Kind != KindMap {
			return span.Spanned[Value]{}, mismatch(path, "map", rv, raw.Span)
		}
		out := make(map[string]span.Spanned[Value], len(rv.Map))
		for key, item := range rv.Map {
			keyPath := fmt.Sprintf("%s.%s", path, key)
			validated, err := validateAt(keyPath, span.Spanned[ParamType]{Value: *typ.Item, Span: pt.Span}, item)
			if err != nil {
				return span.Spanned[Value]{}, err
			}
			out[key] = validated
		}
		return span.New(Value{Kind: KindMap, Map: out}, raw.Span), nil

	case KindStruct:
		if rv.Kind != KindMap {
			return span.Spanned[Value]{}, mismatch(path, "struct (object)", rv, raw.Span)
		}
		fields, err := validateStruct(path, typ.Fields, rv.Map, raw.Span)
		if err != nil {
			return span.Spanned[Value]{}, err
		}
		return span.New(Value{Kind: KindStruct, Struct: fields}, raw.Span), nil

	case KindUnion:
		if rv.Kind != KindMap {
			return span.Spanned[Value]{}, mismatch(path, "union (object)", rv, raw.Span)
		}
		return validateUnion(path, typ.Cases, rv.Map, raw.Span)

	default:
		return span.Spanned[Value]{}, pipelineerr.NewParamValidationError(path, "known param type", fmt.Sprintf("unrecognized kind %q", typ.Kind), &raw.Span)
	}
}

func mismatch(path, expected string, rv RawValue, sp span.Span) *pipelineerr.Error {
	return pipelineerr.NewParamValidationError(path, expected, string(rv.Kind), &sp)
}

func fieldPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// validateStruct validates a (possibly partial, for union-candidate
// scoring) set of raw values against an ordered field list. Required
// fields must be present; unknown fields are an error; optional absent
// fields take their default (or are omitted entirely).
func validateStruct(path string, fields []Field, raw map[string]span.Spanned[RawValue], structSpan span.Span) (map[string]span.Spanned[Value], *pipelineerr.Error) {
	out := make(map[string]span.Spanned[Value], len(fields))

	for _, f := range fields {
		fp := fieldPath(path, f.Name)
		rawField, present := raw[f.Name]
		if !present {
			if f.Optional {
				if f.Default != nil {
					out[f.Name] = *f.Default
				}
				continue
			}
			return nil, pipelineerr.NewParamValidationError(fp, describeType(f.Type), "missing field", &structSpan)
		}
		validated, err := validateAt(fp, span.Spanned[ParamType]{Value: f.Type, Span: structSpan}, rawField)
		if err != nil {
			return nil, err
		}
		out[f.Name] = validated
	}

	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}
	for key, v := range raw {
		if !known[key] {
			return nil, pipelineerr.NewParamValidationError(fieldPath(path, key), "known field", fmt.Sprintf("unknown field %q", key), &v.Span)
		}
	}

	return out, nil
}

// validateUnion selects the best-fit case per section 4.3: among cases
// whose full structural validation succeeds, prefer the one with the
// largest intersection between its field names and the provided keys. A
// tie between two or more maximal candidates is ambiguous.
func validateUnion(path string, cases [][]Field, raw map[string]span.Spanned[RawValue], unionSpan span.Span) (span.Spanned[Value], *pipelineerr.Error) {
	if len(cases) == 0 {
		return span.Spanned[Value]{}, pipelineerr.NewParamValidationError(path, "union", "empty union schema", &unionSpan)
	}

	type candidate struct {
		index        int
		fields       map[string]span.Spanned[Value]
		intersection int
	}

	var candidates []candidate
	var failureReasons []string

	for i, caseFields := range cases {
		fields, err := validateStruct(path, caseFields, raw, unionSpan)
		if err != nil {
			failureReasons = append(failureReasons, fmt.Sprintf("case %d: %s", i, err.Error()))
			continue
		}
		candidates = append(candidates, candidate{index: i, fields: fields, intersection: intersectionSize(caseFields, raw)})
	}

	if len(candidates) == 0 {
		return span.Spanned[Value]{}, pipelineerr.NewParamValidationError(path, "one matching union case", fmt.Sprintf("no case matched: %v", failureReasons), &unionSpan)
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].intersection > candidates[b].intersection
	})

	if len(candidates) > 1 && candidates[0].intersection == candidates[1].intersection {
		return span.Spanned[Value]{}, pipelineerr.NewParamValidationError(path, "one unambiguous union case", "multiple cases matched with equal key intersection", &unionSpan)
	}

	best := candidates[0]
	return span.New(Value{Kind: KindUnion, Struct: best.fields}, unionSpan), nil
}

func intersectionSize(fields []Field, raw map[string]span.Spanned[RawValue]) int {
	n := 0
	for _, f := range fields {
		if _, ok := raw[f.Name]; ok {
			n++
		}
	}
	return n
}

func describeType(t ParamType) string {
	return string(t.Kind)
}
