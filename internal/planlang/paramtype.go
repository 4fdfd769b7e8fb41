package planlang

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/span"
)

// ptypeValue wraps a paramschema.ParamType so plan authors can build one
// from Starlark using the predeclared type constructors below. It only
// needs to satisfy starlark.Value; plans never inspect it beyond passing
// it to params = ... or nesting it inside struct_()/union_()/list_()/map_().
type ptypeValue struct {
	typ paramschema.ParamType
}

func (p *ptypeValue) String() string        { return fmt.Sprintf("<ptype %s>", p.typ.Kind) }
func (p *ptypeValue) Type() string           { return "ptype" }
func (p *ptypeValue) Freeze()                {}
func (p *ptypeValue) Truth() starlark.Bool   { return starlark.True }
func (p *ptypeValue) Hash() (uint32, error)  { return 0, fmt.Errorf("ptype is not hashable") }

// fieldValue wraps a named field declaration inside struct_()/union_()
// kwargs: the field's ptype, whether it's optional, and an optional
// default carried as a raw Starlark value (converted lazily, since the
// field's own type isn't known until the enclosing struct_ call runs).
type fieldValue struct {
	typ        ptypeValue
	optional   bool
	hasDefault bool
	def        *span.Spanned[paramschema.Value]
}

func (f *fieldValue) String() string       { return "<field>" }
func (f *fieldValue) Type() string         { return "field" }
func (f *fieldValue) Freeze()              {}
func (f *fieldValue) Truth() starlark.Bool { return starlark.True }
func (f *fieldValue) Hash() (uint32, error) { return 0, fmt.Errorf("field is not hashable") }

var _ starlark.Value = (*ptypeValue)(nil)
var _ starlark.Value = (*fieldValue)(nil)

// typeConstructors is the predeclared environment fragment describing the
// param schema DSL: scalar constants (not callable), and builtins for the
// container and composite shapes. sourceSpan is the plan source's span,
// used to resolve default_() values (which must themselves be validated
// and, for host-path defaults, resolved relative to the plan file).
func typeConstructors(sourceSpan span.Span) starlark.StringDict {
	return starlark.StringDict{
		"bool_":       &ptypeValue{typ: paramschema.Bool()},
		"int_":        &ptypeValue{typ: paramschema.Int()},
		"float_":      &ptypeValue{typ: paramschema.Float()},
		"string_":     &ptypeValue{typ: paramschema.String()},
		"host_path":   &ptypeValue{typ: paramschema.HostPath()},
		"target_path": &ptypeValue{typ: paramschema.TargetPath()},
		"list_":       starlark.NewBuiltin("list_", builtinList),
		"map_":        starlark.NewBuiltin("map_", builtinMap),
		"struct_":     starlark.NewBuiltin("struct_", builtinStruct),
		"union_":      starlark.NewBuiltin("union_", builtinUnion),
		"optional_":   starlark.NewBuiltin("optional_", builtinOptional),
		"default_":    newDefaultBuiltin(sourceSpan),
	}
}

func asPtype(v starlark.Value, argName string) (paramschema.ParamType, error) {
	pt, ok := v.(*ptypeValue)
	if !ok {
		return paramschema.ParamType{}, fmt.Errorf("%s must be a param type, got %s", argName, v.Type())
	}
	return pt.typ, nil
}

func builtinList(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var item starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "item", &item); err != nil {
		return nil, err
	}
	itemType, err := asPtype(item, "item")
	if err != nil {
		return nil, err
	}
	return &ptypeValue{typ: paramschema.List(itemType)}, nil
}

func builtinMap(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var item starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "item", &item); err != nil {
		return nil, err
	}
	itemType, err := asPtype(item, "item")
	if err != nil {
		return nil, err
	}
	return &ptypeValue{typ: paramschema.Map(itemType)}, nil
}

// fieldsFromKwargs turns struct_/union_-case kwargs into an ordered field
// list. Starlark preserves kwarg order, so the resulting field order
// matches the order they were written in the plan source.
func fieldsFromKwargs(kwargs []starlark.Tuple) ([]paramschema.Field, error) {
	fields := make([]paramschema.Field, 0, len(kwargs))
	for _, kv := range kwargs {
		name := string(kv[0].(starlark.String))
		value := kv[1]

		switch v := value.(type) {
		case *ptypeValue:
			fields = append(fields, paramschema.Field{Name: name, Type: v.typ})
		case *fieldValue:
			fields = append(fields, paramschema.Field{
				Name:     name,
				Type:     v.typ.typ,
				Optional: v.optional,
				Default:  v.def,
			})
		default:
			return nil, fmt.Errorf("field %q must be a param type, optional_(), or default_(), got %s", name, value.Type())
		}
	}
	return fields, nil
}

func builtinStruct(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("struct_ takes only keyword arguments")
	}
	fields, err := fieldsFromKwargs(kwargs)
	if err != nil {
		return nil, err
	}
	return &ptypeValue{typ: paramschema.Struct(fields...)}, nil
}

func builtinUnion(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) != 0 {
		return nil, fmt.Errorf("union_ takes only positional struct_() cases")
	}
	cases := make([][]paramschema.Field, 0, len(args))
	for i, arg := range args {
		pt, ok := arg.(*ptypeValue)
		if !ok || pt.typ.Kind != paramschema.KindStruct {
			return nil, fmt.Errorf("union_ case %d must be a struct_(), got %s", i, arg.Type())
		}
		cases = append(cases, pt.typ.Fields)
	}
	return &ptypeValue{typ: paramschema.Union(cases...)}, nil
}

func builtinOptional(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var typ starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "typ", &typ); err != nil {
		return nil, err
	}
	pt, ok := typ.(*ptypeValue)
	if !ok {
		return nil, fmt.Errorf("optional_ argument must be a param type")
	}
	return &fieldValue{typ: *pt, optional: true}, nil
}

// newDefaultBuiltin binds sourceSpan so default_() can validate its value
// against its declared type immediately, the same way any other param
// value would be validated.
func newDefaultBuiltin(sourceSpan span.Span) *starlark.Builtin {
	return starlark.NewBuiltin("default_", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var typ, value starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "typ", &typ, "value", &value); err != nil {
			return nil, err
		}
		pt, ok := typ.(*ptypeValue)
		if !ok {
			return nil, fmt.Errorf("default_ first argument must be a param type")
		}

		raw, err := toRawValue(value, sourceSpan)
		if err != nil {
			return nil, fmt.Errorf("default_ value: %w", err)
		}
		validated, verr := paramschema.Validate(span.Spanned[paramschema.ParamType]{Value: pt.typ, Span: sourceSpan}, raw)
		if verr != nil {
			return nil, fmt.Errorf("default_ value does not match its declared type: %w", verr)
		}

		return &fieldValue{typ: *pt, optional: true, hasDefault: true, def: &validated}, nil
	})
}
