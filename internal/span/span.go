// Package span carries source-location diagnostics from the plan language
// through validation and into error reporting. Every user-visible error
// that can be attributed to a location in a plan source carries at least
// one Span.
package span

import "fmt"

// Position is a single point in a source file.
type Position struct {
	Line   int // 1-indexed
	Column int // 1-indexed
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// Span is a (source, start, end) triple identifying a range of a plan
// source file. SourceID names the source (typically its absolute path);
// Start/End delimit the range within it.
type Span struct {
	SourceID string
	Start    Position
	End      Position
}

func (s Span) String() string {
	if s.SourceID == "" {
		return fmt.Sprintf("%s-%s", s.Start, s.End)
	}
	return fmt.Sprintf("%s:%s-%s", s.SourceID, s.Start, s.End)
}

// Spanned annotates a value of type T with the Span it originated from.
type Spanned[T any] struct {
	Value T
	Span  Span
}

// New builds a Spanned value.
func New[T any](value T, sp Span) Spanned[T] {
	return Spanned[T]{Value: value, Span: sp}
}

// Map transforms the wrapped value, keeping the span.
func Map[A, B any](s Spanned[A], f func(A) B) Spanned[B] {
	return Spanned[B]{Value: f(s.Value), Span: s.Span}
}
