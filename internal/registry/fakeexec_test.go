package registry

import (
	"context"
	"strings"

	"github.com/driftless/driftless/internal/exec"
)

// scriptedExecutor is a fake exec.Executor whose Run responses are
// pre-programmed by exact "command arg1 arg2" key, and whose file state is
// pre-seeded, so registry tests can drive Probe without touching a real
// machine.
type scriptedExecutor struct {
	responses map[string]exec.RunResult
	files     map[string]exec.FileInfo
	contents  map[string][]byte

	runs   []exec.RunParams
	writes []exec.WriteParams
	mkdirs []string
	chmods []string
	chowns []string
	removes []string
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		responses: make(map[string]exec.RunResult),
		files:     make(map[string]exec.FileInfo),
		contents:  make(map[string][]byte),
	}
}

func runKey(command string, args []string) string {
	return command + " " + strings.Join(args, " ")
}

func (f *scriptedExecutor) on(command string, args []string, result exec.RunResult) {
	f.responses[runKey(command, args)] = result
}

func (f *scriptedExecutor) Run(ctx context.Context, params exec.RunParams) (exec.RunResult, error) {
	f.runs = append(f.runs, params)
	if result, ok := f.responses[runKey(params.Command, params.Args)]; ok {
		return result, nil
	}
	return exec.RunResult{ExitCode: 0}, nil
}

func (f *scriptedExecutor) Stat(ctx context.Context, path string) (exec.FileInfo, error) {
	if info, ok := f.files[path]; ok {
		return info, nil
	}
	return exec.FileInfo{Exists: false}, nil
}

func (f *scriptedExecutor) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return f.contents[path], nil
}

func (f *scriptedExecutor) WriteFile(ctx context.Context, params exec.WriteParams) error {
	f.writes = append(f.writes, params)
	return nil
}

func (f *scriptedExecutor) Remove(ctx context.Context, path string) error {
	f.removes = append(f.removes, path)
	return nil
}

func (f *scriptedExecutor) Mkdir(ctx context.Context, path string, mode uint32) error {
	f.mkdirs = append(f.mkdirs, path)
	return nil
}

func (f *scriptedExecutor) Chmod(ctx context.Context, path string, mode uint32) error {
	f.chmods = append(f.chmods, path)
	return nil
}

func (f *scriptedExecutor) Chown(ctx context.Context, path, owner, group string) error {
	f.chowns = append(f.chowns, path)
	return nil
}

var _ exec.Executor = (*scriptedExecutor)(nil)
