package exec

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalExecutor runs commands and touches files on the machine the engine
// itself is running on.
type LocalExecutor struct{}

// NewLocalExecutor constructs a LocalExecutor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

var _ Executor = (*LocalExecutor)(nil)

func (l *LocalExecutor) Run(ctx context.Context, params RunParams) (RunResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, params.Command, params.Args...)
	cmd.Dir = params.WorkDir
	if len(params.Env) > 0 {
		env := os.Environ()
		for k, v := range params.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	if params.Stdin != "" {
		cmd.Stdin = bytes.NewBufferString(params.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start)

	log.Debug().
		Str("command", params.Command).
		Strs("args", params.Args).
		Dur("duration", duration).
		Msg("local executor ran command")

	result := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if runErr == nil {
		result.ExitCode = 0
		return result, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, fmt.Errorf("running %s: %w", params.Command, runErr)
}

func (l *LocalExecutor) Stat(ctx context.Context, path string) (FileInfo, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return FileInfo{Exists: false}, nil
	}
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}

	fi := FileInfo{
		Exists: true,
		IsDir:  info.IsDir(),
		Mode:   uint32(info.Mode().Perm()),
		Size:   info.Size(),
	}

	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if u, err := user.LookupId(strconv.Itoa(int(stat.Uid))); err == nil {
			fi.Owner = u.Username
		}
		if g, err := user.LookupGroupId(strconv.Itoa(int(stat.Gid))); err == nil {
			fi.Group = g.Name
		}
	}

	if !fi.IsDir {
		if sum, err := checksumFile(path); err == nil {
			fi.Checksum = sum
		}
	}

	return fi, nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (l *LocalExecutor) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (l *LocalExecutor) WriteFile(ctx context.Context, params WriteParams) error {
	mode := os.FileMode(params.Mode)
	if mode == 0 {
		mode = 0o644
	}

	if params.Create {
		if err := os.MkdirAll(filepath.Dir(params.Path), 0o755); err != nil {
			return fmt.Errorf("creating parent directory for %s: %w", params.Path, err)
		}
	}

	if err := os.WriteFile(params.Path, params.Content, mode); err != nil {
		return fmt.Errorf("writing %s: %w", params.Path, err)
	}
	if err := os.Chmod(params.Path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", params.Path, err)
	}
	if params.Owner != "" || params.Group != "" {
		if err := l.Chown(ctx, params.Path, params.Owner, params.Group); err != nil {
			return err
		}
	}
	return nil
}

func (l *LocalExecutor) Remove(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

func (l *LocalExecutor) Mkdir(ctx context.Context, path string, mode uint32) error {
	m := os.FileMode(mode)
	if m == 0 {
		m = 0o755
	}
	if err := os.MkdirAll(path, m); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func (l *LocalExecutor) Chmod(ctx context.Context, path string, mode uint32) error {
	if err := os.Chmod(path, os.FileMode(mode)); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

func (l *LocalExecutor) Chown(ctx context.Context, path string, owner, group string) error {
	uid := -1
	gid := -1
	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return fmt.Errorf("looking up user %s: %w", owner, err)
		}
		uid, _ = strconv.Atoi(u.Uid)
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return fmt.Errorf("looking up group %s: %w", group, err)
		}
		gid, _ = strconv.Atoi(g.Gid)
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}
