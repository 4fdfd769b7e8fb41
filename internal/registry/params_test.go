package registry

import (
	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/span"
)

func strValue(s string) paramschema.Value {
	return paramschema.Value{Kind: paramschema.KindString, Str: s}
}

func intValue(i int64) paramschema.Value {
	return paramschema.Value{Kind: paramschema.KindInt, Int: i}
}

func boolValue(b bool) paramschema.Value {
	return paramschema.Value{Kind: paramschema.KindBool, Bool: b}
}

func listValue(items ...paramschema.Value) paramschema.Value {
	spanned := make([]span.Spanned[paramschema.Value], len(items))
	for i, item := range items {
		spanned[i] = span.New(item, span.Span{})
	}
	return paramschema.Value{Kind: paramschema.KindList, List: spanned}
}

func structValue(fields map[string]paramschema.Value) paramschema.Value {
	out := make(map[string]span.Spanned[paramschema.Value], len(fields))
	for name, v := range fields {
		out[name] = span.New(v, span.Span{})
	}
	return paramschema.Value{Kind: paramschema.KindStruct, Struct: out}
}
