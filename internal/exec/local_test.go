package exec

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalExecutor_RunCapturesOutputAndExitCode(t *testing.T) {
	l := NewLocalExecutor()
	result, err := l.Run(context.Background(), RunParams{Command: "echo", Args: []string{"hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("expected stdout %q, got %q", "hello\n", result.Stdout)
	}
}

func TestLocalExecutor_RunNonZeroExitIsNotAnError(t *testing.T) {
	l := NewLocalExecutor()
	result, err := l.Run(context.Background(), RunParams{Command: "false"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Succeeded() {
		t.Error("expected a failing exit code")
	}
}

func TestLocalExecutor_StatMissingFileReportsNotExists(t *testing.T) {
	l := NewLocalExecutor()
	info, err := l.Stat(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Exists {
		t.Error("expected Exists=false for a missing path")
	}
}

func TestLocalExecutor_WriteFileThenReadFileRoundTrips(t *testing.T) {
	l := NewLocalExecutor()
	path := filepath.Join(t.TempDir(), "nested", "config.txt")

	err := l.WriteFile(context.Background(), WriteParams{
		Path:    path,
		Content: []byte("hello world"),
		Mode:    0o640,
		Create:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error writing file: %v", err)
	}

	data, err := l.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error reading file: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", string(data))
	}

	info, err := l.Stat(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error stat-ing file: %v", err)
	}
	if !info.Exists || info.IsDir {
		t.Errorf("expected an existing regular file, got %+v", info)
	}
	if os.FileMode(info.Mode).Perm() != 0o640 {
		t.Errorf("expected mode 0640, got %o", info.Mode)
	}
}

func TestLocalExecutor_RemoveDeletesFile(t *testing.T) {
	l := NewLocalExecutor()
	path := filepath.Join(t.TempDir(), "gone.txt")
	if err := l.WriteFile(context.Background(), WriteParams{Path: path, Content: []byte("x"), Create: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := l.Remove(context.Background(), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := l.Stat(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Exists {
		t.Error("expected the file to be gone")
	}
}
