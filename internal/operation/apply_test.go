package operation

import (
	"bytes"
	"context"
	"testing"

	"github.com/driftless/driftless/internal/exec"
)

type fakeExecutor struct {
	runs  []exec.RunParams
	files map[string][]byte
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{files: make(map[string][]byte)}
}

func (f *fakeExecutor) Run(ctx context.Context, params exec.RunParams) (exec.RunResult, error) {
	f.runs = append(f.runs, params)
	return exec.RunResult{ExitCode: 0, Stdout: "ok\n"}, nil
}

func (f *fakeExecutor) Stat(ctx context.Context, path string) (exec.FileInfo, error) {
	data, ok := f.files[path]
	if !ok {
		return exec.FileInfo{Exists: false}, nil
	}
	return exec.FileInfo{Exists: true, Size: int64(len(data))}, nil
}

func (f *fakeExecutor) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return f.files[path], nil
}

func (f *fakeExecutor) WriteFile(ctx context.Context, params exec.WriteParams) error {
	f.files[params.Path] = params.Content
	return nil
}

func (f *fakeExecutor) Remove(ctx context.Context, path string) error {
	delete(f.files, path)
	return nil
}

func (f *fakeExecutor) Mkdir(ctx context.Context, path string, mode uint32) error { return nil }
func (f *fakeExecutor) Chmod(ctx context.Context, path string, mode uint32) error { return nil }
func (f *fakeExecutor) Chown(ctx context.Context, path, owner, group string) error {
	return nil
}

var _ exec.Executor = (*fakeExecutor)(nil)

func TestApply_CommandRunsViaShell(t *testing.T) {
	ex := newFakeExecutor()
	var stdout, stderr bytes.Buffer

	result, err := Apply(context.Background(), ex, RunCommand("echo hi"), &stdout, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded() {
		t.Errorf("expected success, got exit code %d", result.ExitCode)
	}
	if len(ex.runs) != 1 || ex.runs[0].Command != "/bin/sh" {
		t.Errorf("expected one /bin/sh invocation, got %+v", ex.runs)
	}
	if stdout.String() != "ok\n" {
		t.Errorf("expected streamed stdout %q, got %q", "ok\n", stdout.String())
	}
}

func TestApply_FileWriteWritesContent(t *testing.T) {
	ex := newFakeExecutor()
	var stdout, stderr bytes.Buffer

	_, err := Apply(context.Background(), ex, FileWrite("/etc/motd", []byte("hello"), ""), &stdout, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(ex.files["/etc/motd"]) != "hello" {
		t.Errorf("expected file contents %q, got %q", "hello", ex.files["/etc/motd"])
	}
}

func TestApply_GroupIsANoOp(t *testing.T) {
	ex := newFakeExecutor()
	var stdout, stderr bytes.Buffer

	result, err := Apply(context.Background(), ex, GroupOperation(), &stdout, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded() {
		t.Error("expected a group operation to always succeed")
	}
	if len(ex.runs) != 0 {
		t.Errorf("expected no commands run for a group operation, got %+v", ex.runs)
	}
}
