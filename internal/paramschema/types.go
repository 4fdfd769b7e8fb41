package paramschema

import "github.com/driftless/driftless/internal/span"

// Kind discriminates both ParamType variants and the Value/RawValue shapes
// that carry them.
type Kind string

const (
	KindBool       Kind = "bool"
	KindInt        Kind = "int"
	KindFloat      Kind = "float"
	KindString     Kind = "string"
	KindHostPath   Kind = "host_path"
	KindTargetPath Kind = "target_path"
	KindList       Kind = "list"
	KindMap        Kind = "map"
	KindStruct     Kind = "struct"
	KindUnion      Kind = "union"
	KindNull       Kind = "null"
)

// ParamType is the schema algebra described by section 4.3: scalars, two
// path kinds, two containers, and two composite shapes (Struct and the
// best-fit-discriminated Union).
type ParamType struct {
	Kind Kind

	// Item is the element/value type for List and Map respectively.
	Item *ParamType

	// Fields is the ordered field list for Struct.
	Fields []Field

	// Cases is the set of candidate Struct shapes for Union.
	Cases [][]Field
}

// Field is one named member of a Struct or Union case.
type Field struct {
	Name     string
	Type     ParamType
	Optional bool
	Default  *span.Spanned[Value]
}

func Bool() ParamType       { return ParamType{Kind: KindBool} }
func Int() ParamType        { return ParamType{Kind: KindInt} }
func Float() ParamType      { return ParamType{Kind: KindFloat} }
func String() ParamType     { return ParamType{Kind: KindString} }
func HostPath() ParamType   { return ParamType{Kind: KindHostPath} }
func TargetPath() ParamType { return ParamType{Kind: KindTargetPath} }

func List(item ParamType) ParamType { return ParamType{Kind: KindList, Item: &item} }
func Map(item ParamType) ParamType  { return ParamType{Kind: KindMap, Item: &item} }
func Struct(fields ...Field) ParamType {
	return ParamType{Kind: KindStruct, Fields: fields}
}
func Union(cases ...[]Field) ParamType {
	return ParamType{Kind: KindUnion, Cases: cases}
}

// RawValue is the untyped value read from a plan source before schema
// validation — the plan-language analogue of a JSON value, with every
// node carrying its own span.
type RawValue struct {
	Kind Kind

	Bool   bool
	Number float64
	Str    string
	List   []span.Spanned[RawValue]
	Map    map[string]span.Spanned[RawValue]
}

func RawBoolValue(b bool) RawValue     { return RawValue{Kind: KindBool, Bool: b} }
func RawNumberValue(n float64) RawValue { return RawValue{Kind: KindFloat, Number: n} }
func RawStringValue(s string) RawValue { return RawValue{Kind: KindString, Str: s} }
func RawListValue(items ...span.Spanned[RawValue]) RawValue {
	return RawValue{Kind: KindList, List: items}
}
func RawMapValue(m map[string]span.Spanned[RawValue]) RawValue {
	return RawValue{Kind: KindMap, Map: m}
}
func RawNullValue() RawValue { return RawValue{Kind: KindNull} }

// Value is the validated, typed counterpart of RawValue: the image
// Validate produces once a RawValue has been matched against a ParamType.
type Value struct {
	Kind Kind

	Bool   bool
	Int    int64
	Float  float64
	Str    string // String, HostPath (resolved absolute), TargetPath (verbatim)
	List   []span.Spanned[Value]
	Map    map[string]span.Spanned[Value]
	Struct map[string]span.Spanned[Value]
}
