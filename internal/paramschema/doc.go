// Package paramschema implements the parameter schema algebra: ParamType
// describes the shape a plan or resource kind expects, RawValue is the
// untyped value read from a plan source, and Validate matches one against
// the other to produce a fully-typed Value or a structured validation
// error naming the failing field path, the expected shape, and the
// observed shape.
package paramschema
