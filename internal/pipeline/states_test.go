package pipeline

import (
	"context"
	"testing"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/tree"
	"github.com/driftless/driftless/internal/updatestream"
)

// fakeExecutor is a no-op exec.Executor stand-in: runStates never inspects
// its results directly, only what File.Probe derives from Stat.
type fakeExecutor struct {
	exists bool
}

var _ exec.Executor = (*fakeExecutor)(nil)

func (f *fakeExecutor) Run(ctx context.Context, params exec.RunParams) (exec.RunResult, error) {
	return exec.RunResult{ExitCode: 0}, nil
}
func (f *fakeExecutor) Stat(ctx context.Context, path string) (exec.FileInfo, error) {
	return exec.FileInfo{Exists: f.exists}, nil
}
func (f *fakeExecutor) ReadFile(ctx context.Context, path string) ([]byte, error) { return nil, nil }
func (f *fakeExecutor) WriteFile(ctx context.Context, params exec.WriteParams) error { return nil }
func (f *fakeExecutor) Remove(ctx context.Context, path string) error                { return nil }
func (f *fakeExecutor) Mkdir(ctx context.Context, path string, mode uint32) error     { return nil }
func (f *fakeExecutor) Chmod(ctx context.Context, path string, mode uint32) error     { return nil }
func (f *fakeExecutor) Chown(ctx context.Context, path, owner, group string) error    { return nil }

func TestRunStates_ProbesEveryNonGroupResourceConcurrently(t *testing.T) {
	reg := registry.NewRegistry()
	ex := &fakeExecutor{exists: true}

	a := fileLeaf("res-a", "/etc/a", "")
	b := fileLeaf("res-b", "/etc/b", "")
	root := groupBranch("root", a, b)

	ft := buildFlatTree(root)

	var records []updatestream.Record
	emit := func(rec updatestream.Record) error {
		records = append(records, rec)
		return nil
	}

	if err := runStates(context.Background(), ft, reg, ex, 2, emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rootSlot, err := ft.Root()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, idx := range rootSlot.Children {
		child, err := ft.Get(idx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if child.Value.state == nil {
			t.Fatalf("expected every probed resource to have a state")
		}
		if child.Value.state.File.Probe != registry.FileProbePresent {
			t.Fatalf("expected probe result present for an existing file, got %v", child.Value.state.File.Probe)
		}
	}

	var starts, completes, startsAll, completeAll int
	for _, rec := range records {
		switch rec.Kind {
		case updatestream.KindStatesStart:
			startsAll++
		case updatestream.KindStatesComplete:
			completeAll++
		case updatestream.KindStatesNodeStart:
			starts++
		case updatestream.KindStatesNodeComplete:
			completes++
		}
	}
	if startsAll != 1 || completeAll != 1 {
		t.Fatalf("expected exactly one StatesStart/StatesComplete bracket, got %d/%d", startsAll, completeAll)
	}
	if starts != 2 || completes != 2 {
		t.Fatalf("expected a node start/complete pair per probed resource, got %d/%d", starts, completes)
	}
}

func TestRunStates_UnknownModuleErrors(t *testing.T) {
	reg := registry.NewRegistry()
	ex := &fakeExecutor{}

	nd := &nodeData{resource: registry.Resource{Kind: registry.Kind("bogus")}}
	root := tree.NewLeaf[*nodeData, *nodeData](nd, &tree.CausalityMeta{ID: "res-a"})
	ft := buildFlatTree(root)

	if err := runStates(context.Background(), ft, reg, ex, 1, noopEmit); err == nil {
		t.Fatal("expected an error for an unknown module")
	}
}
