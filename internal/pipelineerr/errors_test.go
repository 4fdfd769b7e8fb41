package pipelineerr

import (
	"errors"
	"testing"

	"github.com/driftless/driftless/internal/span"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := NewParseError("bad syntax", nil)
	if !IsKind(err, KindParse) {
		t.Errorf("expected IsKind(KindParse) to be true")
	}
	if IsKind(err, KindEvaluate) {
		t.Errorf("expected IsKind(KindEvaluate) to be false")
	}
}

func TestError_UnwrapChain(t *testing.T) {
	root := errors.New("boom")
	err := NewSourceReadError("could not read plan", root)
	if !errors.Is(err, root) {
		t.Errorf("expected errors.Is to find the wrapped root cause")
	}
}

func TestNewParamValidationError_CarriesSpanAndPath(t *testing.T) {
	sp := span.Span{SourceID: "/plans/p.plan", Start: span.Position{Line: 1, Column: 1}}
	err := NewParamValidationError("params.source", "HostPath", "string (absolute)", &sp)
	if err.Path != "params.source" {
		t.Errorf("expected path params.source, got %s", err.Path)
	}
	if err.Span == nil || err.Span.SourceID != "/plans/p.plan" {
		t.Errorf("expected span to be carried through, got %+v", err.Span)
	}
}

func TestError_WithNodeIndexAndSpan(t *testing.T) {
	err := NewProbeError("probe failed", nil).WithNodeIndex(3).WithSpan(span.Span{SourceID: "x"})
	if err.NodeIndex == nil || *err.NodeIndex != 3 {
		t.Errorf("expected node index 3, got %v", err.NodeIndex)
	}
	if err.Span == nil || err.Span.SourceID != "x" {
		t.Errorf("expected span to be set")
	}
}
