package registry

import "github.com/driftless/driftless/internal/paramschema"

// field looks up a validated struct/union-case field by name.
func field(v paramschema.Value, name string) (paramschema.Value, bool) {
	spanned, ok := v.Struct[name]
	if !ok {
		return paramschema.Value{}, false
	}
	return spanned.Value, true
}

func stringField(v paramschema.Value, name string) string {
	f, ok := field(v, name)
	if !ok {
		return ""
	}
	return f.Str
}

func optionalStringField(v paramschema.Value, name string) (string, bool) {
	f, ok := field(v, name)
	if !ok {
		return "", false
	}
	return f.Str, true
}

func intField(v paramschema.Value, name string) int64 {
	f, ok := field(v, name)
	if !ok {
		return 0
	}
	return f.Int
}

func optionalIntField(v paramschema.Value, name string) (int64, bool) {
	f, ok := field(v, name)
	if !ok {
		return 0, false
	}
	return f.Int, true
}

func optionalBoolField(v paramschema.Value, name string, fallback bool) bool {
	f, ok := field(v, name)
	if !ok {
		return fallback
	}
	return f.Bool
}

func stringListField(v paramschema.Value, name string) []string {
	f, ok := field(v, name)
	if !ok {
		return nil
	}
	out := make([]string, len(f.List))
	for i, item := range f.List {
		out[i] = item.Value.Str
	}
	return out
}
