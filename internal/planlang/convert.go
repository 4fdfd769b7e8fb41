package planlang

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/span"
)

// toRawValue converts a Starlark runtime value into a paramschema.RawValue.
// Starlark values carry no per-node source position once evaluated, so
// every converted node is stamped with the plan's overall source span;
// field-path attribution (not span attribution) is what identifies the
// failing location within a parameter value.
func toRawValue(v starlark.Value, sourceSpan span.Span) (span.Spanned[paramschema.RawValue], error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return span.New(paramschema.RawNullValue(), sourceSpan), nil

	case starlark.Bool:
		return span.New(paramschema.RawBoolValue(bool(val)), sourceSpan), nil

	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return span.Spanned[paramschema.RawValue]{}, fmt.Errorf("integer too large to represent")
		}
		return span.New(paramschema.RawNumberValue(float64(i)), sourceSpan), nil

	case starlark.Float:
		return span.New(paramschema.RawNumberValue(float64(val)), sourceSpan), nil

	case starlark.String:
		return span.New(paramschema.RawStringValue(string(val)), sourceSpan), nil

	case *starlark.List:
		items := make([]span.Spanned[paramschema.RawValue], val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := toRawValue(val.Index(i), sourceSpan)
			if err != nil {
				return span.Spanned[paramschema.RawValue]{}, err
			}
			items[i] = item
		}
		return span.New(paramschema.RawListValue(items...), sourceSpan), nil

	case starlark.Tuple:
		items := make([]span.Spanned[paramschema.RawValue], len(val))
		for i, elem := range val {
			item, err := toRawValue(elem, sourceSpan)
			if err != nil {
				return span.Spanned[paramschema.RawValue]{}, err
			}
			items[i] = item
		}
		return span.New(paramschema.RawListValue(items...), sourceSpan), nil

	case *starlark.Dict:
		out := make(map[string]span.Spanned[paramschema.RawValue], val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return span.Spanned[paramschema.RawValue]{}, fmt.Errorf("map keys must be strings")
			}
			value, err := toRawValue(item[1], sourceSpan)
			if err != nil {
				return span.Spanned[paramschema.RawValue]{}, err
			}
			out[string(key)] = value
		}
		return span.New(paramschema.RawMapValue(out), sourceSpan), nil

	case *starlarkstruct.Struct:
		out := make(map[string]span.Spanned[paramschema.RawValue])
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := toRawValue(attr, sourceSpan)
			if err != nil {
				return span.Spanned[paramschema.RawValue]{}, err
			}
			out[name] = value
		}
		return span.New(paramschema.RawMapValue(out), sourceSpan), nil

	default:
		return span.Spanned[paramschema.RawValue]{}, fmt.Errorf("unsupported starlark value of type %s", v.Type())
	}
}

// valueToStarlark converts a validated paramschema.Value back into a
// Starlark value so it can be passed into a plan's setup() call. Struct
// and Union values become starlarkstruct.Struct instances so plan code can
// use attribute access (params.field); Map values stay dicts.
func valueToStarlark(v paramschema.Value) (starlark.Value, error) {
	switch v.Kind {
	case paramschema.KindBool:
		return starlark.Bool(v.Bool), nil
	case paramschema.KindInt:
		return starlark.MakeInt64(v.Int), nil
	case paramschema.KindFloat:
		return starlark.Float(v.Float), nil
	case paramschema.KindString, paramschema.KindHostPath, paramschema.KindTargetPath:
		return starlark.String(v.Str), nil
	case paramschema.KindList:
		items := make([]starlark.Value, len(v.List))
		for i, item := range v.List {
			converted, err := valueToStarlark(item.Value)
			if err != nil {
				return nil, err
			}
			items[i] = converted
		}
		return starlark.NewList(items), nil
	case paramschema.KindMap:
		dict := starlark.NewDict(len(v.Map))
		for key, item := range v.Map {
			converted, err := valueToStarlark(item.Value)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), converted); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case paramschema.KindStruct, paramschema.KindUnion:
		fields := make(starlark.StringDict, len(v.Struct))
		for key, item := range v.Struct {
			converted, err := valueToStarlark(item.Value)
			if err != nil {
				return nil, err
			}
			fields[key] = converted
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
	default:
		return nil, fmt.Errorf("unsupported param value kind %q", v.Kind)
	}
}
